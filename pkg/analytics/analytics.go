// Package analytics computes dashboard aggregates over interaction records.
//
// Every function is pure: it reads the records it is given, never mutates them
// and returns zero values for empty input.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"interaction-dashboard/pkg/interaction"
)

// DefaultTopAgents is the number of agents shown on the overview
const DefaultTopAgents = 5

// Business-hours window of the hourly trend, inclusive
const (
	TrendStartHour = 7
	TrendEndHour   = 18
)

const msPerMinute = 60000

// Summary holds the headline metrics of a record set
type Summary struct {
	TotalInteractions        int    `json:"totalInteractions"`
	AvgHandleTime            int64  `json:"avgHandleTime"` // minutes
	ActiveAgents             int    `json:"activeAgents"`
	PrimaryChannel           string `json:"primaryChannel"`
	PrimaryChannelVolume     int    `json:"primaryChannelVolume"`
	PrimaryChannelPercentage int64  `json:"primaryChannelPercentage"`
}

// AgentPerformance is one agent's rollup
type AgentPerformance struct {
	Agent        string   `json:"agent"`
	Initials     string   `json:"initials"`
	Interactions int      `json:"interactions"`
	AvgDuration  int64    `json:"avgDuration"` // minutes
	Queues       []string `json:"queues"`
}

// QueuePerformance is one queue's rollup
type QueuePerformance struct {
	Queue        string `json:"queue"`
	Interactions int    `json:"interactions"`
	AvgDuration  int64  `json:"avgDuration"` // minutes
	Percentage   int64  `json:"percentage"`
}

// HourCount is the number of interactions starting in an hour
type HourCount struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// roundHalfUp rounds a non-negative value with .5 going up
func roundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}

func avgMinutes(totalMs int64, count int) int64 {
	if count == 0 {
		return 0
	}
	return roundHalfUp(float64(totalMs) / (float64(count) * msPerMinute))
}

func percentage(part, total int) int64 {
	if total == 0 {
		return 0
	}
	return roundHalfUp(float64(part*100) / float64(total))
}

// Summarize computes the headline metrics. Ties for the primary channel go to
// the media type seen first.
func Summarize(records []interaction.Interaction) Summary {
	total := len(records)
	if total == 0 {
		return Summary{}
	}

	var totalDuration int64
	agents := make(map[string]struct{})
	channelCounts := make(map[string]int)
	var channelOrder []string

	for _, r := range records {
		totalDuration += r.Duration
		agents[r.Agent] = struct{}{}
		if _, seen := channelCounts[r.MediaType]; !seen {
			channelOrder = append(channelOrder, r.MediaType)
		}
		channelCounts[r.MediaType]++
	}

	var primary string
	var primaryCount int
	for _, mt := range channelOrder {
		if channelCounts[mt] > primaryCount {
			primary = mt
			primaryCount = channelCounts[mt]
		}
	}

	return Summary{
		TotalInteractions:        total,
		AvgHandleTime:            avgMinutes(totalDuration, total),
		ActiveAgents:             len(agents),
		PrimaryChannel:           primary,
		PrimaryChannelVolume:     primaryCount,
		PrimaryChannelPercentage: percentage(primaryCount, total),
	}
}

// TopAgents ranks agents by interaction count. Ties keep first-seen order.
// A limit of zero or less returns every agent.
func TopAgents(records []interaction.Interaction, limit int) []AgentPerformance {
	type agentStats struct {
		count     int
		duration  int64
		queues    []string
		queueSeen map[string]bool
	}

	stats := make(map[string]*agentStats)
	var order []string
	for _, r := range records {
		s, ok := stats[r.Agent]
		if !ok {
			s = &agentStats{queueSeen: make(map[string]bool)}
			stats[r.Agent] = s
			order = append(order, r.Agent)
		}
		s.count++
		s.duration += r.Duration
		if !s.queueSeen[r.Queue] {
			s.queueSeen[r.Queue] = true
			s.queues = append(s.queues, r.Queue)
		}
	}

	result := make([]AgentPerformance, 0, len(order))
	for _, agent := range order {
		s := stats[agent]
		result = append(result, AgentPerformance{
			Agent:        agent,
			Initials:     AgentInitials(agent),
			Interactions: s.count,
			AvgDuration:  avgMinutes(s.duration, s.count),
			Queues:       s.queues,
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Interactions > result[j].Interactions
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// AgentInitials returns up to two upper-case initials of a name
func AgentInitials(name string) string {
	parts := strings.Fields(name)
	if len(parts) > 2 {
		parts = parts[:2]
	}

	var b strings.Builder
	for _, part := range parts {
		b.WriteString(strings.ToUpper(string([]rune(part)[0])))
	}
	return b.String()
}

// QueueDistribution rolls records up by queue, largest first
func QueueDistribution(records []interaction.Interaction) []QueuePerformance {
	counts := make(map[string]int)
	durations := make(map[string]int64)
	var order []string

	for _, r := range records {
		if _, seen := counts[r.Queue]; !seen {
			order = append(order, r.Queue)
		}
		counts[r.Queue]++
		durations[r.Queue] += r.Duration
	}

	total := len(records)
	result := make([]QueuePerformance, 0, len(order))
	for _, q := range order {
		result = append(result, QueuePerformance{
			Queue:        q,
			Interactions: counts[q],
			AvgDuration:  avgMinutes(durations[q], counts[q]),
			Percentage:   percentage(counts[q], total),
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Interactions > result[j].Interactions
	})
	return result
}

// HourlyTrend counts interactions per hour from 07:00 through 18:00.
// The hour is taken from StartTime in its own location; other hours are not counted.
func HourlyTrend(records []interaction.Interaction) []HourCount {
	return HourlyTrendIn(records, nil)
}

// HourlyTrendIn is HourlyTrend with hours read in loc. A nil loc uses each
// record's own location.
func HourlyTrendIn(records []interaction.Interaction, loc *time.Location) []HourCount {
	counts := hourCounts(records, loc)

	result := make([]HourCount, 0, TrendEndHour-TrendStartHour+1)
	for h := TrendStartHour; h <= TrendEndHour; h++ {
		result = append(result, HourCount{
			Hour:  fmt.Sprintf("%02d:00", h),
			Count: counts[h],
		})
	}
	return result
}

// HourOfDay counts interactions for every hour of the day, labelled "0:00" to "23:00"
func HourOfDay(records []interaction.Interaction) []HourCount {
	return HourOfDayIn(records, nil)
}

// HourOfDayIn is HourOfDay with hours read in loc. A nil loc uses each
// record's own location.
func HourOfDayIn(records []interaction.Interaction, loc *time.Location) []HourCount {
	counts := hourCounts(records, loc)

	result := make([]HourCount, 24)
	for h := range result {
		result[h] = HourCount{Hour: fmt.Sprintf("%d:00", h), Count: counts[h]}
	}
	return result
}

func hourCounts(records []interaction.Interaction, loc *time.Location) [24]int {
	var counts [24]int
	for _, r := range records {
		start := r.StartTime
		if loc != nil {
			start = start.In(loc)
		}
		counts[start.Hour()]++
	}
	return counts
}
