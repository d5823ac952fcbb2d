package domain

// Location is an embedded coordinate pair plus its derived geocode. The
// geocode is never set by callers; every write path recomputes it from
// lat/lng so the two can not drift apart.
type Location struct {
	Lat     float64 `gorm:"column:lat;not null" json:"lat"`
	Lng     float64 `gorm:"column:lng;not null" json:"lng"`
	Geocode string  `gorm:"column:geocode;not null;index" json:"geocode"`
}
