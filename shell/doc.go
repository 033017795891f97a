// Package shell serves the application shell to browsers.
//
// A Server either serves a directory or proxies an origin through an
// offline.Controller. Either way it adds the cross-origin isolation headers
// shared memory needs, serves a worker script generated from the manifest at
// sw.js under the shell's scope (/sw.js for a directory), and accepts capability reports from the browser gate at
// /_shell/diagnostics.
package shell
