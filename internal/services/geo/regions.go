package geo

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/prospector/internal/models"
)

//go:embed data/regions.json
var regionData []byte

// regionFile is the on-disk shape of the packaged region dataset.
type regionFile struct {
	Countries []struct {
		Code   string `json:"code"`
		Name   string `json:"name"`
		States []struct {
			Code   string `json:"code"`
			Name   string `json:"name"`
			Cities []struct {
				Name       string `json:"name"`
				Population *int   `json:"population,omitempty"`
			} `json:"cities"`
		} `json:"states"`
	} `json:"countries"`
}

// RegionIndex is the preloaded administrative-region and population
// index. All lookups are in-memory; keys are case-insensitive.
type RegionIndex struct {
	countryNames  map[string]string
	stateNames    map[string]string             // iso2|code -> name
	stateCities   map[string][]models.Candidate // iso2|code -> cities
	countryCities map[string][]models.Candidate // iso2 -> (state, city) pairs
	populations   map[string]int                // iso2|code|city -> population
}

// LoadRegionIndex parses the packaged dataset.
func LoadRegionIndex() (*RegionIndex, error) {
	return LoadRegionIndexFromJSON(regionData)
}

// LoadRegionIndexFromJSON builds an index from raw dataset JSON, allowing
// deployments to swap in a larger dataset.
func LoadRegionIndexFromJSON(data []byte) (*RegionIndex, error) {
	var file regionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse region dataset: %w", err)
	}

	idx := &RegionIndex{
		countryNames:  make(map[string]string),
		stateNames:    make(map[string]string),
		stateCities:   make(map[string][]models.Candidate),
		countryCities: make(map[string][]models.Candidate),
		populations:   make(map[string]int),
	}

	for _, country := range file.Countries {
		iso2 := strings.ToUpper(country.Code)
		idx.countryNames[iso2] = country.Name

		for _, state := range country.States {
			stateKey := iso2 + "|" + strings.ToUpper(state.Code)
			idx.stateNames[stateKey] = state.Name

			for _, city := range state.Cities {
				candidate := models.Candidate{
					CityName:   city.Name,
					StateCode:  strings.ToUpper(state.Code),
					StateName:  state.Name,
					Population: city.Population,
				}
				idx.stateCities[stateKey] = append(idx.stateCities[stateKey], candidate)
				idx.countryCities[iso2] = append(idx.countryCities[iso2], candidate)

				if city.Population != nil {
					idx.populations[populationKey(iso2, state.Code, city.Name)] = *city.Population
				}
			}
		}
	}

	return idx, nil
}

func populationKey(iso2, adminCode, cityName string) string {
	return strings.ToUpper(iso2) + "|" + strings.ToUpper(adminCode) + "|" + strings.ToLower(cityName)
}

// Population returns the known population for a city, or nil.
func (idx *RegionIndex) Population(iso2, adminCode, cityName string) *int {
	if pop, ok := idx.populations[populationKey(iso2, adminCode, cityName)]; ok {
		p := pop
		return &p
	}
	// Cities can be listed without a state qualifier.
	if adminCode != "" {
		if pop, ok := idx.populations[populationKey(iso2, "", cityName)]; ok {
			p := pop
			return &p
		}
	}
	return nil
}

// CountryName returns the display name for an ISO-3166 alpha-2 code.
func (idx *RegionIndex) CountryName(iso2 string) (string, bool) {
	name, ok := idx.countryNames[strings.ToUpper(iso2)]
	return name, ok
}

// StateName returns the display name for a state code.
func (idx *RegionIndex) StateName(iso2, stateCode string) (string, bool) {
	name, ok := idx.stateNames[strings.ToUpper(iso2)+"|"+strings.ToUpper(stateCode)]
	return name, ok
}

// CitiesOfState lists candidate cities of one state.
func (idx *RegionIndex) CitiesOfState(iso2, stateCode string) []models.Candidate {
	return idx.stateCities[strings.ToUpper(iso2)+"|"+strings.ToUpper(stateCode)]
}

// CitiesOfCountry lists candidate (state, city) pairs of a country.
func (idx *RegionIndex) CitiesOfCountry(iso2 string) []models.Candidate {
	return idx.countryCities[strings.ToUpper(iso2)]
}
