// Package dbpf reads, edits and writes SimCity 4 DBPF archives.
//
// A DBPF archive is a 96-byte header, a sequence of entry payloads and an
// index table giving each entry's Type-Group-Instance key, offset and size.
// Entries listed in the directory entry are QFS compressed.
//
// Opening an archive parses the header, the index and the directory only.
// Payloads are read on demand and cached on the entry until it is freed,
// either explicitly or by a shared [cache.LRU].
//
// # Quick Start
//
// Read an exemplar:
//
//	a, err := dbpf.Open("plugins/tower.dat")
//	if err != nil {
//	    return err
//	}
//	e, ok := a.FindTGI(dbpf.TypeExemplar, 0x1234, 0x5678)
//	if !ok {
//	    return dbpf.ErrNotFound
//	}
//	ex, err := dbpf.ReadAs[*exemplar.Exemplar](e)
//
// Edit and save:
//
//	a.Add(dbpf.TGI{Type: 0x1, Group: 0x2, Instance: 0x3}, data, true)
//	a.Remove(dbpf.Q().WithType(dbpf.TypeLText))
//	err = a.Save("plugins/tower.dat")
//
// An unmodified archive always serializes to exactly the bytes it was read
// from. When entries change, untouched entries keep their stored bytes and
// only the directory, offsets and index are rewritten.
//
// # Memory
//
// Share one [cache.LRU] between every archive with [WithCache] to bound the
// memory held by decoded payloads:
//
//	lru, _ := cache.New(cache.WithMaxBytes(1 << 30))
//	a, err := dbpf.Open(path, dbpf.WithCache(lru))
package dbpf
