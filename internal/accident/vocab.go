package accident

import (
	"sort"
	"strings"
)

// VehicleTypes is the closed vocabulary vehicles are mapped into.
var VehicleTypes = []string{
	"Bus", "Car", "Noah", "Human hauler", "Trolley", "Chander Gari",
	"Auto Rickshaw", "CNG", "Easy-bike", "Truck", "Garbage Truck", "Trailer",
	"Motorcycle", "Microbus", "Scooter", "Construction vehicle", "Bicycle",
	"Ambulance", "Pickup", "Lorry", "Paddy cutter vehicles", "Bulkhead",
	"Crane", "Wrecker", "Tractor", "Cart", "Leguna", "Nosimon",
	"Three-Wheeler", "Four-Wheeler", "Votvoti", "Kariman", "Mahindra", "Van",
	"Rickshaw", "Boat", "Trawler", "Vessel", "Launch", "Tanker", "Oil Tanker",
	"Road roller", "Power Tiller", "Excavator", "Train", "Airplane",
	"Pedestrian", "Other",
}

// Causes is the controlled vocabulary for accident causes.
var Causes = []string{
	"ploughed", "ram", "hit", "reckless", "plunged", "wrong side", "racing",
	"tailgating", "negligence", "collision", "break fail", "defects",
	"breakdown", "crushed", "bad weather", "overtaking", "unfit vehicles",
	"derailment", "engine problem", "driver fatigue", "driver asleep",
	"electric short circuit", "slipped", "skidded", "unskilled driver",
	"speeding", "signal violation", "explosion", "crashed", "run over",
	"hit and run", "lost control", "fell", "tire problem", "overturned",
	"others",
}

var (
	vehicleIndex = func() map[string]string {
		m := make(map[string]string, len(VehicleTypes))
		for _, v := range VehicleTypes {
			m[vehicleKey(v)] = v
		}
		// common spellings outside the vocabulary
		m["motorbike"] = "Motorcycle"
		m["bike"] = "Motorcycle"
		m["easybike"] = "Easy-bike"
		m["autorickshaw"] = "Auto Rickshaw"
		m["pickupvan"] = "Pickup"
		m["pickuptruck"] = "Pickup"
		m["covered van"] = "Truck"
		m["coveredvan"] = "Truck"
		m["threewheeler"] = "Three-Wheeler"
		m["fourwheeler"] = "Four-Wheeler"
		m["plane"] = "Airplane"
		m["aeroplane"] = "Airplane"
		return m
	}()

	// longest first so "hit and run" wins over "hit"
	causesByLength = func() []string {
		c := append([]string(nil), Causes...)
		sort.SliceStable(c, func(i, j int) bool { return len(c[i]) > len(c[j]) })
		return c
	}()

	causeSynonyms = map[string]string{
		"brake fail":            "break fail",
		"brake failure":         "break fail",
		"break failure":         "break fail",
		"bead weather":          "bad weather",
		"elctric short circuit": "electric short circuit",
		"short circuit":         "electric short circuit",
		"sliped":                "slipped",
		"tyre":                  "tire problem",
		"ran over":              "run over",
		"collided":              "collision",
		"rammed":                "ram",
		"overspeeding":          "speeding",
		"capsize":               "overturned",
		"toppled":               "overturned",
		"derailed":              "derailment",
		"dozed off":             "driver asleep",
		"hit-and-run":           "hit and run",
		"out of control":        "lost control",
	}

	// longest first so the most specific synonym wins
	synonymsByLength = func() []string {
		keys := make([]string, 0, len(causeSynonyms))
		for k := range causeSynonyms {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if len(keys[i]) != len(keys[j]) {
				return len(keys[i]) > len(keys[j])
			}
			return keys[i] < keys[j]
		})
		return keys
	}()

	weekdays = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
)

func vehicleKey(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.ReplaceAll(v, "-", "")
	v = strings.ReplaceAll(v, " ", "")
	v = strings.TrimSuffix(v, "s")
	return v
}

// NormalizeVehicle maps a free-text vehicle name into VehicleTypes. Empty and
// null-like values stay empty; anything unrecognised becomes "Other".
func NormalizeVehicle(v string) string {
	if IsUnknown(v) {
		return ""
	}
	if canon, ok := vehicleIndex[vehicleKey(v)]; ok {
		return canon
	}
	if canon, ok := vehicleIndex[strings.ToLower(strings.TrimSpace(v))]; ok {
		return canon
	}
	lower := strings.ToLower(v)
	switch {
	case strings.Contains(lower, "bus") && !strings.Contains(lower, "microbus"):
		return "Bus"
	case strings.Contains(lower, "microbus"):
		return "Microbus"
	case strings.Contains(lower, "motorcycle"), strings.Contains(lower, "motorbike"):
		return "Motorcycle"
	case strings.Contains(lower, "oil tanker"):
		return "Oil Tanker"
	case strings.Contains(lower, "truck"):
		return "Truck"
	case strings.Contains(lower, "cng"):
		return "CNG"
	case strings.Contains(lower, "train"):
		return "Train"
	}
	return "Other"
}

// NormalizeVehicleList normalises a comma separated list of vehicles.
func NormalizeVehicleList(list string) string {
	if IsUnknown(list) {
		return ""
	}
	var out []string
	for _, part := range strings.Split(list, ",") {
		if v := NormalizeVehicle(part); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}

// NormalizeCause maps a free-text cause onto Causes. The result is "others"
// when nothing in the vocabulary is recognised, and "" when the input is empty.
func NormalizeCause(cause string) string {
	c := strings.ToLower(strings.TrimSpace(cause))
	if c == "" || c == "null" {
		return ""
	}
	if canon, ok := causeSynonyms[c]; ok {
		return canon
	}
	for _, known := range Causes {
		if c == known {
			return known
		}
	}
	for _, syn := range synonymsByLength {
		if strings.Contains(c, syn) {
			return causeSynonyms[syn]
		}
	}
	for _, known := range causesByLength {
		if strings.Contains(c, known) {
			return known
		}
	}
	return "others"
}

// NormalizeAccidentType maps model output such as "Road accident" onto the
// accident type vocabulary.
func NormalizeAccidentType(t string) string {
	s := strings.ToLower(strings.TrimSpace(t))
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "not a listed"), strings.Contains(s, "unlisted"):
		return TypeUnlisted
	case strings.Contains(s, "road"):
		return TypeRoad
	case strings.Contains(s, "train"), strings.Contains(s, "rail"):
		return TypeTrain
	case strings.Contains(s, "water"), strings.Contains(s, "launch"), strings.Contains(s, "boat"):
		return TypeWaterways
	case strings.Contains(s, "plane"), strings.Contains(s, "air"):
		return TypePlane
	}
	return TypeUnlisted
}

// NormalizePlaceType maps the place description onto the place vocabulary.
func NormalizePlaceType(p string) string {
	s := strings.ToLower(strings.TrimSpace(p))
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "expressway"):
		return PlaceExpressway
	case strings.Contains(s, "highway"):
		return PlaceHighway
	case strings.Contains(s, "water"), strings.Contains(s, "river"), strings.Contains(s, "ferry"),
		strings.Contains(s, "boat"), strings.Contains(s, "vessel"):
		return PlaceWater
	case strings.Contains(s, "rail"), strings.Contains(s, "train"):
		return PlaceRail
	case strings.Contains(s, "road"), strings.Contains(s, "street"), strings.Contains(s, "flyover"),
		strings.Contains(s, "bridge"):
		return PlaceRoad
	}
	return PlaceOther
}

// NormalizeCountry collapses the country field to Bangladesh or other.
func NormalizeCountry(c string) string {
	s := strings.ToLower(strings.TrimSpace(c))
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "bangladesh"):
		return CountryBangladesh
	}
	return CountryOther
}

// NormalizeFrequency lowercases the daily and previous-update frequencies and
// keeps periodic descriptions such as "Monthly (November)(2023)(BRTA)" as-is.
func NormalizeFrequency(f string) string {
	s := strings.TrimSpace(f)
	switch strings.ToLower(s) {
	case "daily":
		return FrequencyDaily
	case "previous accident update", "previous accidents update":
		return FrequencyPreviousUpdate
	}
	return s
}

// NormalizeWeekday returns the canonical weekday name, or "" when the value is
// not a weekday.
func NormalizeWeekday(d string) string {
	s := strings.TrimSpace(d)
	for _, w := range weekdays {
		if strings.EqualFold(s, w) || strings.EqualFold(s, w[:3]) {
			return w
		}
	}
	return ""
}

// IsUnknown reports whether an extracted value stands for "no information".
func IsUnknown(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "null", "none", "nan", "n/a", "unknown":
		return true
	}
	return false
}
