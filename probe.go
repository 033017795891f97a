package wasmshell

// passiveDataProbe is the smallest valid module that only validates when
// bulk memory operations with passive data segments are supported:
//
//	(module (memory 1) (data passive ""))
var passiveDataProbe = [...]byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 memory, min 1
	0x0b, 0x03, 0x01, 0x01, 0x00, // data section: 1 passive segment, empty
}

// sharedMemoryProbe validates only where shared linear memory is available:
//
//	(module (memory 1 1 shared))
var sharedMemoryProbe = [...]byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x05, 0x04, 0x01, 0x03, 0x01, 0x01, // memory section: shared, min 1, max 1
}

// PassiveDataProbe returns a fresh copy of the passive data segment probe.
func PassiveDataProbe() []byte {
	b := passiveDataProbe
	return b[:]
}

// SharedMemoryProbe returns a fresh copy of the shared memory probe.
func SharedMemoryProbe() []byte {
	b := sharedMemoryProbe
	return b[:]
}
