package dbpftype

// Well-known type ids.
const (
	TypeExemplar uint32 = 0x6534284A
	TypeCohort   uint32 = 0x05342861
	TypeDir      uint32 = 0xE86B1EEF
	TypeLText    uint32 = 0x2026960B
	TypeFSH      uint32 = 0x7AB50E44
	TypePNG      uint32 = 0x856DDBAC
	TypeS3D      uint32 = 0x5AD0E817

	TypeLot                   uint32 = 0xC9BD5D4A
	TypeBuilding              uint32 = 0xA9BD882D
	TypeProp                  uint32 = 0x2977AA47
	TypeFlora                 uint32 = 0xA9C05C85
	TypeBaseTexture           uint32 = 0xC97F987C
	TypeNetwork               uint32 = 0xC9C05C6E
	TypePrebuiltNetwork       uint32 = 0x49C1A034
	TypeNetworkBridgeOccupant uint32 = 0x49CC1BCD
	TypeNetworkTunnelOccupant uint32 = 0x8A4BD52B
	TypePipe                  uint32 = 0x49C05B9F
	TypeLineItem              uint32 = 0xAA313C9F
	TypeDepartmentBudget      uint32 = 0xE990BFFC
)

// DirTGI identifies the directory entry that lists compressed entries.
var DirTGI = TGI{Type: TypeDir, Group: 0xE86B1EEF, Instance: 0x286B1F03}

// Exemplar property and group ids used by the catalog.
const (
	// PropertyFamily holds the family ids an exemplar belongs to.
	PropertyFamily uint32 = 0x27812870

	// GroupLotConfiguration holds lot configuration exemplars, which never carry families.
	GroupLotConfiguration uint32 = 0xA8FBD372
)
