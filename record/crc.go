package record

// crcLimit caps the number of bytes the game feeds to the checksum.
const crcLimit = 250_000

var crcTable = func() [256]uint32 {
	var table [256]uint32
	const poly = 0x04C11DB7
	for i := range 256 {
		crc := uint32(i) << 24
		for range 8 {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}()

// Checksum returns the MSB-first CRC32 (poly 0x04C11DB7, init 0xFFFFFFFF,
// no final xor) of at most the first 250000 bytes of data.
func Checksum(data []byte) uint32 {
	if len(data) > crcLimit {
		data = data[:crcLimit]
	}
	crc := uint32(0xFFFFFFFF)
	for _, v := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^v]
	}
	return crc
}
