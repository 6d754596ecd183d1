package server

import "github.com/riftzone/zoneserver/server/components"

// ZoneID and ConnID are re-exported from components so callers of the root
// package (Config, Zone, CrossZoneBus wiring) don't need a second import for
// types that are part of the component bundle too.
type (
	ZoneID = components.ZoneID
	ConnID = components.ConnID
)
