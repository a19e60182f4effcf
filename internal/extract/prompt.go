package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
	"github.com/TobiSchelling/accidentwatch/internal/llm"
)

const (
	confirmRequest = "Please confirm extracting accident data into JSON format as per the instructions."
	confirmReply   = "Confirmed. Each accident report will be structured into a separate JSON object as per the guidelines."
)

var systemPrompt = buildSystemPrompt()

func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(`Task: extract the key facts from accident news articles about Bangladesh and return them as structured JSON. Every accident at a distinct place, and every monthly or yearly report, is a separate JSON object. Wrap each JSON value in a ` + "```json" + ` fenced block. Use null for any missing information.

Fields:
- 'news_category': one of [Daily Accident Report, Editorial or Opinion piece, Organizational Report on Periodic Accidents, Court Article, Previous Accidents News Update, News Feature Article, Not a related article]. For anything outside the first three, give only the category and leave every other field null. Articles about accidents outside Bangladesh, fires, arson, workplace accidents or crimes are "Not a related article".
  - "Daily Accident Report": accidents that happened that day or the previous day at one or more places.
  - "Organizational Report on Periodic Accidents": a specific month or year report covering all of Bangladesh with total accidents, deaths and injuries. Report road, train, waterways and plane figures under separate ids.
  - "Previous Accidents News Update": a later update on an earlier accident, for example a victim dying days after.
- 'id': a unique number per accident, starting from 1.
- 'number_of_accidents_occured': 1 for each accident in daily reports and updates, the reported total for monthly or yearly reports, 0 if none.
- 'is_the_accident_data_yearly_monthly_or_daily': Daily, Previous accident update, Monthly or Yearly. Periodic reports name the month, year and reporting organisation, e.g. Monthly (November)(2023)(Road Safety Foundation) or Yearly (2020)(Bangladesh Police).
- 'day_of_the_week_of_the_accident': the weekday name only, inferred from the publishing time when the text says "yesterday" or similar.
- 'exact_location_of_accident', 'area_of_accident': the most specific place and the wider area, using current official names.
- 'division_of_accident', 'district_of_accident', 'subdistrict_or_upazila_of_accident': official Bangladesh administrative names. The title often names the district.
- 'is_place_of_accident_highway_or_expressway_or_water_or_others': highway, expressway, flyover, water, roads, city roads, village roads, bridge, river, railway or others.
- 'is_country_bangladesh_or_other_country': 'Bangladesh' or 'other country'.
- 'is_type_of_accident_road_accident_or_train_accident_or_waterways_accident_or_plane_accident': Road accident, Train accident, Waterways accident, Plane accident, or Not a listed accident reported news.
- 'total_number_of_people_killed', 'total_number_of_people_injured': integers only, 0 when nobody was killed or injured.
`)
	fmt.Fprintf(&b, "- 'is_reason_or_cause_for_the_accident_ploughed_or_ram_or_hit_or_collision_or_breakfail_or_others': one of %s.\n",
		strings.Join(accident.Causes, ", "))
	fmt.Fprintf(&b, "- 'primary_vehicle_involved', 'secondary_vehicle_involved', 'tertiary_vehicle_involved': generalised vehicle types from [%s]. Use Pedestrian when pedestrians were hit; ignore trees, poles and other objects.\n",
		strings.Join(accident.VehicleTypes, ", "))
	b.WriteString(`- 'any_more_vehicles_involved': further vehicle types, comma separated, when more than three were involved.
- 'available_ages_of_the_deceased': ages only, comma separated.
- 'headline': a headline for the accident.
- 'summary': a short summary of the accident.
`)
	return b.String()
}

func userRequest(a accident.RawArticle) string {
	published := "unknown"
	if a.PublishedAt != nil {
		published = a.PublishedAt.Format(time.DateTime)
	}
	return fmt.Sprintf(`Please process the following road accident article and provide the extracted data in JSON format. Each accident should be a separate JSON object with these keys: %s.
Use the article publishing datetime (Bangladesh time): %s, title: %s, and text: %s to fill in the fields.`,
		strings.Join(CanonicalFields, ", "), published, a.Title, a.Text)
}

// Messages builds the conversation sent for one article: the schema, the
// confirmation exchange, then the article itself.
func Messages(a accident.RawArticle) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: confirmRequest},
		{Role: llm.RoleAssistant, Content: confirmReply},
		{Role: llm.RoleUser, Content: userRequest(a)},
	}
}
