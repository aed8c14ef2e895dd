package dbpf

import (
	"github.com/meigma/dbpf/internal/dbpftype"
)

// Re-export types from internal/dbpftype for public API.
type (
	// TGI is the Type-Group-Instance triple identifying a resource.
	TGI = dbpftype.TGI

	// Query selects entries by any combination of TGI components.
	Query = dbpftype.Query

	// ProgressEvent represents a progress update during a catalog build.
	ProgressEvent = dbpftype.ProgressEvent

	// ProgressStage identifies the current phase of a catalog build.
	ProgressStage = dbpftype.ProgressStage

	// ProgressFunc receives progress updates during a catalog build.
	ProgressFunc = dbpftype.ProgressFunc
)

// ParseTGI parses "T-G-I" where each component is decimal or 0x-prefixed hex.
var ParseTGI = dbpftype.ParseTGI

// Q returns an empty query to be narrowed with WithType, WithGroup and WithInstance.
func Q() Query {
	return Query{}
}

// Re-export well-known type ids.
const (
	TypeExemplar = dbpftype.TypeExemplar
	TypeCohort   = dbpftype.TypeCohort
	TypeDir      = dbpftype.TypeDir
	TypeLText    = dbpftype.TypeLText
	TypeFSH      = dbpftype.TypeFSH
	TypePNG      = dbpftype.TypePNG
	TypeS3D      = dbpftype.TypeS3D

	TypeLot                   = dbpftype.TypeLot
	TypeBuilding              = dbpftype.TypeBuilding
	TypeProp                  = dbpftype.TypeProp
	TypeFlora                 = dbpftype.TypeFlora
	TypeBaseTexture           = dbpftype.TypeBaseTexture
	TypeNetwork               = dbpftype.TypeNetwork
	TypePrebuiltNetwork       = dbpftype.TypePrebuiltNetwork
	TypeNetworkBridgeOccupant = dbpftype.TypeNetworkBridgeOccupant
	TypeNetworkTunnelOccupant = dbpftype.TypeNetworkTunnelOccupant
	TypePipe                  = dbpftype.TypePipe
	TypeLineItem              = dbpftype.TypeLineItem
	TypeDepartmentBudget      = dbpftype.TypeDepartmentBudget

	PropertyFamily        = dbpftype.PropertyFamily
	GroupLotConfiguration = dbpftype.GroupLotConfiguration
)

// DirTGI identifies the directory entry.
var DirTGI = dbpftype.DirTGI

// Re-export progress stage constants.
const (
	StageIdle           = dbpftype.StageIdle
	StageScanning       = dbpftype.StageScanning
	StageParsing        = dbpftype.StageParsing
	StageMerging        = dbpftype.StageMerging
	StageFamilyIndexing = dbpftype.StageFamilyIndexing
	StageReady          = dbpftype.StageReady
)

// QueryTGI returns a query matching exactly tgi.
func QueryTGI(tgi TGI) Query {
	return tgi.Query()
}
