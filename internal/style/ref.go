package style

// StationRef names a station either directly by id or through a record
// that carries one.
type StationRef interface {
	StationKey() string
}

// StationID is a bare public station identifier
type StationID string

// StationKey returns the identifier itself
func (id StationID) StationKey() string {
	return string(id)
}

func resolve(ref StationRef) string {
	if ref == nil {
		return ""
	}
	return ref.StationKey()
}
