package maps

import "slices"

// PlaceDetails is the subset of a place the address resolver reads.
type PlaceDetails struct {
	PlaceID           string
	FormattedAddress  string
	Location          LatLng
	AddressComponents []AddressComponent
}

type LatLng struct {
	Latitude  float64
	Longitude float64
}

type AddressComponent struct {
	LongName  string
	ShortName string
	Types     []string
}

// Component returns the long name of the first component tagged typ.
func (p PlaceDetails) Component(typ string) string {
	for _, comp := range p.AddressComponents {
		if slices.Contains(comp.Types, typ) {
			return comp.LongName
		}
	}
	return ""
}

// ShortComponent is Component for the abbreviated form, e.g. "TX" for
// administrative_area_level_1.
func (p PlaceDetails) ShortComponent(typ string) string {
	for _, comp := range p.AddressComponents {
		if slices.Contains(comp.Types, typ) {
			return comp.ShortName
		}
	}
	return ""
}

// placeResponse is the Places v1 wire shape for the requested field mask.
type placeResponse struct {
	ID               string `json:"id"`
	FormattedAddress string `json:"formattedAddress"`
	Location         struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	AddressComponents []struct {
		LongText  string   `json:"longText"`
		ShortText string   `json:"shortText"`
		Types     []string `json:"types"`
	} `json:"addressComponents"`
}

func (r placeResponse) details() *PlaceDetails {
	out := &PlaceDetails{
		PlaceID:          r.ID,
		FormattedAddress: r.FormattedAddress,
		Location:         LatLng{Latitude: r.Location.Latitude, Longitude: r.Location.Longitude},
	}
	for _, comp := range r.AddressComponents {
		out.AddressComponents = append(out.AddressComponents, AddressComponent{
			LongName:  comp.LongText,
			ShortName: comp.ShortText,
			Types:     comp.Types,
		})
	}
	return out
}
