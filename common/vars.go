package common

var Version = "dev"

const (
	PackageName = "github.com/ruteri/equipment-registry"
)
