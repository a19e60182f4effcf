package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
)

// CanonicalFields is the declared extraction schema, in prompt order.
var CanonicalFields = []string{
	"news_category",
	"id",
	"number_of_accidents_occured",
	"is_the_accident_data_yearly_monthly_or_daily",
	"day_of_the_week_of_the_accident",
	"exact_location_of_accident",
	"area_of_accident",
	"division_of_accident",
	"district_of_accident",
	"subdistrict_or_upazila_of_accident",
	"is_place_of_accident_highway_or_expressway_or_water_or_others",
	"is_country_bangladesh_or_other_country",
	"is_type_of_accident_road_accident_or_train_accident_or_waterways_accident_or_plane_accident",
	"total_number_of_people_killed",
	"total_number_of_people_injured",
	"is_reason_or_cause_for_the_accident_ploughed_or_ram_or_hit_or_collision_or_breakfail_or_others",
	"primary_vehicle_involved",
	"secondary_vehicle_involved",
	"tertiary_vehicle_involved",
	"any_more_vehicles_involved",
	"available_ages_of_the_deceased",
	"headline",
	"summary",
}

type setter func(r *accident.Record, v any)

func str(f func(r *accident.Record, s string)) setter {
	return func(r *accident.Record, v any) {
		s := stringValue(v)
		if accident.IsUnknown(s) {
			s = ""
		}
		f(r, s)
	}
}

func count(f func(r *accident.Record, n int)) setter {
	return func(r *accident.Record, v any) { f(r, Count(v)) }
}

var (
	setCategory   = str(func(r *accident.Record, s string) { r.NewsCategory = accident.NormalizeCategory(s) })
	setLocalID    = str(func(r *accident.Record, s string) { r.LocalID = s })
	setAccidents  = count(func(r *accident.Record, n int) { r.AccidentsOccurred = n })
	setFrequency  = str(func(r *accident.Record, s string) { r.Frequency = accident.NormalizeFrequency(s) })
	setWeekday    = str(func(r *accident.Record, s string) { r.DayOfWeek = accident.NormalizeWeekday(s) })
	setExact      = str(func(r *accident.Record, s string) { r.ExactLocation = s })
	setArea       = str(func(r *accident.Record, s string) { r.Area = s })
	setDivision   = str(func(r *accident.Record, s string) { r.Division = s })
	setDistrict   = str(func(r *accident.Record, s string) { r.District = s })
	setSubdist    = str(func(r *accident.Record, s string) { r.Subdistrict = s })
	setPlace      = str(func(r *accident.Record, s string) { r.PlaceType = accident.NormalizePlaceType(s) })
	setCountry    = str(func(r *accident.Record, s string) { r.Country = accident.NormalizeCountry(s) })
	setType       = str(func(r *accident.Record, s string) { r.AccidentType = accident.NormalizeAccidentType(s) })
	setKilled     = count(func(r *accident.Record, n int) { r.Killed = n })
	setInjured    = count(func(r *accident.Record, n int) { r.Injured = n })
	setCause      = str(func(r *accident.Record, s string) { r.Cause = accident.NormalizeCause(s) })
	setPrimary    = str(func(r *accident.Record, s string) { r.PrimaryVehicle = accident.NormalizeVehicle(s) })
	setSecondary  = str(func(r *accident.Record, s string) { r.SecondaryVehicle = accident.NormalizeVehicle(s) })
	setTertiary   = str(func(r *accident.Record, s string) { r.TertiaryVehicle = accident.NormalizeVehicle(s) })
	setAdditional = str(func(r *accident.Record, s string) { r.AdditionalVehicles = accident.NormalizeVehicleList(s) })
	setAges       = str(func(r *accident.Record, s string) { r.DeceasedAges = s })
	setHeadline   = str(func(r *accident.Record, s string) { r.Headline = s })
	setSummary    = str(func(r *accident.Record, s string) { r.Summary = s })
)

var isCanonical = func() map[string]bool {
	m := make(map[string]bool, len(CanonicalFields))
	for _, f := range CanonicalFields {
		m[f] = true
	}
	return m
}()

// renames maps every accepted key, canonical or short, to its record field.
// Keys outside this table are never guessed at.
var renames = map[string]setter{
	"news_category": setCategory,
	"category":      setCategory,

	"id":       setLocalID,
	"local_id": setLocalID,

	"number_of_accidents_occured":  setAccidents,
	"number_of_accidents_occurred": setAccidents,
	"number_of_accidents":          setAccidents,

	"is_the_accident_data_yearly_monthly_or_daily": setFrequency,
	"frequency": setFrequency,

	"day_of_the_week_of_the_accident": setWeekday,
	"day_of_week":                     setWeekday,

	"exact_location_of_accident": setExact,
	"exact_location":             setExact,
	"area_of_accident":           setArea,
	"area":                       setArea,
	"division_of_accident":       setDivision,
	"division":                   setDivision,
	"district_of_accident":       setDistrict,
	"district":                   setDistrict,

	"subdistrict_or_upazila_of_accident": setSubdist,
	"subdistrict":                        setSubdist,
	"upazila":                            setSubdist,

	"is_place_of_accident_highway_or_expressway_or_water_or_others": setPlace,
	"place_type": setPlace,

	"is_country_bangladesh_or_other_country": setCountry,
	"country":                                setCountry,

	"is_type_of_accident_road_accident_or_train_accident_or_waterways_accident_or_plane_accident": setType,
	"accident_type": setType,

	"total_number_of_people_killed":  setKilled,
	"killed_count":                   setKilled,
	"killed":                         setKilled,
	"total_number_of_people_injured": setInjured,
	"injured_count":                  setInjured,
	"injured":                        setInjured,

	"is_reason_or_cause_for_the_accident_ploughed_or_ram_or_hit_or_collision_or_breakfail_or_others": setCause,
	"reason_or_cause_for_accident": setCause,
	"cause":                        setCause,

	"primary_vehicle_involved":   setPrimary,
	"primary_vehicle":            setPrimary,
	"secondary_vehicle_involved": setSecondary,
	"secondary_vehicle":          setSecondary,
	"tertiary_vehicle_involved":  setTertiary,
	"tertiary_vehicle":           setTertiary,
	"any_more_vehicles_involved": setAdditional,
	"additional_vehicles":        setAdditional,

	"available_ages_of_the_deceased": setAges,
	"deceased_ages":                  setAges,

	"headline": setHeadline,
	"summary":  setSummary,
}

var nonKeyChars = regexp.MustCompile(`[^a-z0-9_]+`)

// FieldKey normalises a model-provided key: lowercase, with runs of other
// characters replaced by one underscore.
func FieldKey(k string) string {
	k = nonKeyChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(k)), "_")
	return strings.Trim(k, "_")
}

// Count coerces a model-provided count to a non-negative integer. Values that
// are not numbers, such as "unknown", become 0.
func Count(v any) int {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.Atoi(s); err == nil {
			f = float64(n)
		} else if parsed, err := strconv.ParseFloat(s, 64); err == nil {
			f = parsed
		} else {
			return 0
		}
	default:
		return 0
	}
	// int(f) is undefined past MaxInt
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f >= math.MaxInt {
		return 0
	}
	return int(f)
}

func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if s := stringValue(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
