// models/airport.go
package models

// AirportInfo is one airport of the directory. Column names follow the airport reference
// table so the csv cache can be read back by the same decoder.
type AirportInfo struct {
	Code      string   `csv:"code" db:"code"`
	ICAO      *string  `csv:"icao" db:"icao"`
	Name      *string  `csv:"name" db:"name"`
	Latitude  *float64 `csv:"latitude" db:"latitude"`
	Longitude *float64 `csv:"longitude" db:"longitude"`
	TimeZone  *string  `csv:"time_zone" db:"time_zone"`
	City      *string  `csv:"city" db:"city"`
	State     *string  `csv:"state" db:"state"`
	Country   *string  `csv:"country" db:"country"`
	StationID *string  `csv:"station_id" db:"station_id"`
}

// MissingGeography reports whether any of city, state or country is unresolved.
func (a AirportInfo) MissingGeography() bool {
	return a.City == nil || a.State == nil || a.Country == nil
}

// FillFrom copies fields of other into a only where a has no value.
// Values already present are never replaced. It returns the number of fields filled.
func (a *AirportInfo) FillFrom(other AirportInfo) int {
	n := 0
	n += fillString(&a.ICAO, other.ICAO)
	n += fillString(&a.Name, other.Name)
	n += fillFloat(&a.Latitude, other.Latitude)
	n += fillFloat(&a.Longitude, other.Longitude)
	n += fillString(&a.TimeZone, other.TimeZone)
	n += fillString(&a.City, other.City)
	n += fillString(&a.State, other.State)
	n += fillString(&a.Country, other.Country)
	n += fillString(&a.StationID, other.StationID)
	return n
}

// CarrierInfo maps an IATA carrier code to its display name.
type CarrierInfo struct {
	Code    string  `csv:"Code" db:"code"`
	Carrier *string `csv:"Carrier" db:"carrier"`
}

// FillFrom follows the same rule as AirportInfo.FillFrom.
func (c *CarrierInfo) FillFrom(other CarrierInfo) int {
	return fillString(&c.Carrier, other.Carrier)
}

// CarrierDirectory is the immutable code -> name lookup used during enrichment.
type CarrierDirectory map[string]string

// Name returns the display name for code, or nil when the code is unknown.
func (d CarrierDirectory) Name(code string) *string {
	name, ok := d[code]
	if !ok {
		return nil
	}
	return &name
}

// AirportDirectory is the immutable code -> AirportInfo lookup used during enrichment.
type AirportDirectory map[string]AirportInfo

// Lookup returns the airport for code, or nil when the code is unknown.
func (d AirportDirectory) Lookup(code string) *AirportInfo {
	a, ok := d[code]
	if !ok {
		return nil
	}
	return &a
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Float64Ptr returns a pointer to f.
func Float64Ptr(f float64) *float64 {
	return &f
}

func fillString(dst **string, src *string) int {
	if *dst != nil || src == nil || *src == "" {
		return 0
	}
	v := *src
	*dst = &v
	return 1
}

func fillFloat(dst **float64, src *float64) int {
	if *dst != nil || src == nil {
		return 0
	}
	v := *src
	*dst = &v
	return 1
}
