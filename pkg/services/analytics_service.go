package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"

	"github.com/verdant-inc/verdant-engine/pkg/models"
)

// Analytics constants. Liters are estimated from pump runtime; the naive
// multiplier models unscheduled hand-watering for the savings comparison.
const (
	litersPerSecond      = 0.5
	naiveUsageMultiplier = 1.3
	maxInsights          = 6
)

// ZoneWaterUsage aggregates pump activity for one zone.
type ZoneWaterUsage struct {
	ZoneID          uuid.UUID `json:"zone_id"`
	ZoneName        string    `json:"zone_name"`
	TotalLiters     float64   `json:"total_liters"`
	CommandCount    int       `json:"command_count"`
	AvgDurationSecs float64   `json:"avg_duration_seconds"`
}

// MonthlySavings compares actual pump usage against a naive estimate for one
// calendar month.
type MonthlySavings struct {
	Month        string  `json:"month"` // "2026-08"
	ActualLiters float64 `json:"actual_liters"`
	NaiveLiters  float64 `json:"naive_liters"`
	SavedLiters  float64 `json:"saved_liters"`
}

// MoistureBucket is one slice of the moisture distribution.
type MoistureBucket struct {
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// ZoneHealth is the composite 0-100 health score for one zone.
type ZoneHealth struct {
	ZoneID      uuid.UUID `json:"zone_id"`
	ZoneName    string    `json:"zone_name"`
	Score       int       `json:"score"`
	AvgMoisture float64   `json:"avg_moisture"`
	AvgTemp     float64   `json:"avg_temperature"`
	AvgHumidity float64   `json:"avg_humidity"`
	Readings    int       `json:"reading_count"`
}

// Insight is one human-readable analytics card.
type Insight struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// AnalyticsService computes dashboard aggregations. All methods are pure
// functions over already-fetched batches; no I/O happens here.
type AnalyticsService interface {
	WaterUsageByZone(commands []*models.Command, zones []*models.Zone) []ZoneWaterUsage
	WaterSavings(commands []*models.Command, monthsBack int) []MonthlySavings
	MoistureDistribution(readings []*models.SensorReading) []MoistureBucket
	PlantHealthScore(readings []*models.SensorReading, zones []*models.Zone) []ZoneHealth
	Insights(readings []*models.SensorReading, zones []*models.Zone, commands []*models.Command) []Insight
}

type analyticsService struct{}

func NewAnalyticsService() AnalyticsService {
	return &analyticsService{}
}

var _ AnalyticsService = (*analyticsService)(nil)

// commandDurationSeconds extracts the watering duration from a command's
// parameters. JSON numbers decode as float64.
func commandDurationSeconds(cmd *models.Command) float64 {
	if cmd.Parameters == nil {
		return 0
	}
	if v, ok := cmd.Parameters["duration_seconds"].(float64); ok {
		return v
	}
	return 0
}

func (s *analyticsService) WaterUsageByZone(commands []*models.Command, zones []*models.Zone) []ZoneWaterUsage {
	zoneNames := make(map[uuid.UUID]string, len(zones))
	for _, z := range zones {
		zoneNames[z.ID] = z.Name
	}
	// Zone attribution goes through the command's parameters; the dashboard
	// enqueues pump commands with the zone id alongside the duration.
	usage := make(map[uuid.UUID]*ZoneWaterUsage)
	var order []uuid.UUID

	for _, cmd := range commands {
		if cmd.CommandType != models.CommandTypePumpOn {
			continue
		}
		zoneID := commandZoneID(cmd)
		if zoneID == uuid.Nil {
			continue
		}
		u, ok := usage[zoneID]
		if !ok {
			u = &ZoneWaterUsage{ZoneID: zoneID, ZoneName: zoneNames[zoneID]}
			usage[zoneID] = u
			order = append(order, zoneID)
		}
		duration := commandDurationSeconds(cmd)
		u.TotalLiters += duration * litersPerSecond
		u.CommandCount++
		// Running average over the commands seen so far.
		u.AvgDurationSecs += (duration - u.AvgDurationSecs) / float64(u.CommandCount)
	}

	result := make([]ZoneWaterUsage, 0, len(order))
	for _, id := range order {
		result = append(result, *usage[id])
	}
	return result
}

func commandZoneID(cmd *models.Command) uuid.UUID {
	if cmd.Parameters == nil {
		return uuid.Nil
	}
	raw, ok := cmd.Parameters["zone_id"].(string)
	if !ok {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// monthKeys returns the trailing window of "2006-01" keys ending at ref's
// month, oldest first. The walk is anchored on the first of the month;
// stepping back with AddDate from a month-end day would normalize days like
// June 31 into the neighboring month and skip or duplicate entries.
func monthKeys(ref time.Time, monthsBack int) []string {
	anchor := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	keys := make([]string, 0, monthsBack)
	for i := monthsBack - 1; i >= 0; i-- {
		keys = append(keys, anchor.AddDate(0, -i, 0).Format("2006-01"))
	}
	return keys
}

func (s *analyticsService) WaterSavings(commands []*models.Command, monthsBack int) []MonthlySavings {
	if monthsBack <= 0 {
		monthsBack = 6
	}

	byMonth := make(map[string]float64)
	for _, cmd := range commands {
		if cmd.CommandType != models.CommandTypePumpOn {
			continue
		}
		month := cmd.CreatedAt.Format("2006-01")
		byMonth[month] += commandDurationSeconds(cmd) * litersPerSecond
	}

	result := make([]MonthlySavings, 0, monthsBack)
	for _, month := range monthKeys(time.Now(), monthsBack) {
		actual := byMonth[month]
		naive := actual * naiveUsageMultiplier
		result = append(result, MonthlySavings{
			Month:        month,
			ActualLiters: actual,
			NaiveLiters:  naive,
			SavedLiters:  naive - actual,
		})
	}
	return result
}

func (s *analyticsService) MoistureDistribution(readings []*models.SensorReading) []MoistureBucket {
	if len(readings) == 0 {
		return nil
	}

	labels := []string{"optimal", "slightly_dry", "too_dry", "too_wet"}
	counts := make(map[string]int, len(labels))
	for _, r := range readings {
		switch m := r.SoilMoisture; {
		case m > 60:
			counts["too_wet"]++
		case m >= 40:
			counts["optimal"]++
		case m >= 30:
			counts["slightly_dry"]++
		default:
			counts["too_dry"]++
		}
	}

	total := float64(len(readings))
	var buckets []MoistureBucket
	for _, label := range labels {
		if counts[label] == 0 {
			continue
		}
		buckets = append(buckets, MoistureBucket{
			Label:      label,
			Count:      counts[label],
			Percentage: float64(counts[label]) / total * 100,
		})
	}
	return buckets
}

// healthPoints maps an average toward a tiered point scale. Each tier is a
// [min, max) band paired with the points awarded for landing in it.
type healthTier struct {
	min, max float64
	points   int
}

func tierPoints(value float64, tiers []healthTier) int {
	for _, t := range tiers {
		if value >= t.min && value < t.max {
			return t.points
		}
	}
	return 0
}

var (
	moistureTiers = []healthTier{
		{40, 61, 40}, {30, 40, 25}, {61, 75, 25}, {20, 30, 10}, {75, 101, 10},
	}
	temperatureTiers = []healthTier{
		{15, 28, 30}, {10, 15, 20}, {28, 33, 20}, {5, 10, 10}, {33, 38, 10},
	}
	humidityTiers = []healthTier{
		{40, 71, 30}, {30, 40, 20}, {71, 85, 20}, {20, 30, 10}, {85, 101, 10},
	}
)

func (s *analyticsService) PlantHealthScore(readings []*models.SensorReading, zones []*models.Zone) []ZoneHealth {
	type agg struct {
		moisture, temp, humidity float64
		count                    int
	}
	byZone := make(map[uuid.UUID]*agg)
	for _, r := range readings {
		a, ok := byZone[r.ZoneID]
		if !ok {
			a = &agg{}
			byZone[r.ZoneID] = a
		}
		a.moisture += r.SoilMoisture
		a.temp += r.Temperature
		a.humidity += r.Humidity
		a.count++
	}

	result := make([]ZoneHealth, 0, len(zones))
	for _, z := range zones {
		h := ZoneHealth{ZoneID: z.ID, ZoneName: z.Name}
		if a, ok := byZone[z.ID]; ok && a.count > 0 {
			n := float64(a.count)
			h.AvgMoisture = a.moisture / n
			h.AvgTemp = a.temp / n
			h.AvgHumidity = a.humidity / n
			h.Readings = a.count
			h.Score = tierPoints(h.AvgMoisture, moistureTiers) +
				tierPoints(h.AvgTemp, temperatureTiers) +
				tierPoints(h.AvgHumidity, humidityTiers)
		}
		result = append(result, h)
	}
	return result
}

func (s *analyticsService) Insights(readings []*models.SensorReading, zones []*models.Zone, commands []*models.Command) []Insight {
	var insights []Insight
	add := func(title, message string) {
		if len(insights) < maxInsights {
			insights = append(insights, Insight{Title: title, Message: message})
		}
	}

	// Rules run in a fixed order and append on first match; the cap keeps the
	// dashboard card list short rather than ranking by severity.

	if hour, count := dominantWateringHour(commands); count >= 3 {
		add("Watering pattern",
			fmt.Sprintf("Most watering happens around %02d:00 (%d %s).",
				hour, count, pluralize(count, "run")))
	}

	if len(readings) > 0 {
		var moistureSum, tempSum float64
		for _, r := range readings {
			moistureSum += r.SoilMoisture
			tempSum += r.Temperature
		}
		avgMoisture := moistureSum / float64(len(readings))
		avgTemp := tempSum / float64(len(readings))

		if avgMoisture < 30 || avgMoisture > 60 {
			add("Average moisture out of range",
				fmt.Sprintf("Garden-wide soil moisture averages %.1f%%, outside the 30-60%% comfort band.", avgMoisture))
		}
		if avgTemp > 30 {
			add("High average temperature",
				fmt.Sprintf("Average temperature across %d %s is %.1f°C.",
					len(readings), pluralize(len(readings), "reading"), avgTemp))
		}
	}

	if dry := zonesBelowMoisture(readings, zones, 25); len(dry) > 0 {
		add("Dry zones",
			fmt.Sprintf("%d %s below 25%% soil moisture: %s.",
				len(dry), pluralize(len(dry), "zone"), strings.Join(dry, ", ")))
	}

	if ratio, ok := waterEfficiencyRatio(commands); ok && ratio < 0.9 {
		add("Water efficiency",
			fmt.Sprintf("Scheduled watering is using %.0f%% of the naive estimate.", ratio*100))
	}

	return insights
}

// pluralize inflects a noun for a count.
func pluralize(count int, noun string) string {
	if count == 1 {
		return noun
	}
	return inflection.Plural(noun)
}

func dominantWateringHour(commands []*models.Command) (hour, count int) {
	byHour := make(map[int]int)
	for _, cmd := range commands {
		if cmd.CommandType == models.CommandTypePumpOn {
			byHour[cmd.CreatedAt.Hour()]++
		}
	}
	best := -1
	for h, c := range byHour {
		if c > count || (c == count && h < best) {
			hour, count, best = h, c, h
		}
	}
	return hour, count
}

func zonesBelowMoisture(readings []*models.SensorReading, zones []*models.Zone, floor float64) []string {
	type agg struct {
		sum   float64
		count int
	}
	byZone := make(map[uuid.UUID]*agg)
	for _, r := range readings {
		a, ok := byZone[r.ZoneID]
		if !ok {
			a = &agg{}
			byZone[r.ZoneID] = a
		}
		a.sum += r.SoilMoisture
		a.count++
	}

	var names []string
	for _, z := range zones {
		if a, ok := byZone[z.ID]; ok && a.count > 0 && a.sum/float64(a.count) < floor {
			names = append(names, z.Name)
		}
	}
	sort.Strings(names)
	return names
}

func waterEfficiencyRatio(commands []*models.Command) (float64, bool) {
	var actual float64
	for _, cmd := range commands {
		if cmd.CommandType == models.CommandTypePumpOn {
			actual += commandDurationSeconds(cmd) * litersPerSecond
		}
	}
	if actual == 0 {
		return 0, false
	}
	naive := actual * naiveUsageMultiplier
	return actual / naive, true
}
