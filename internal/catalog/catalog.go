// Package catalog holds the static, day-indexed campaign message tables for
// the push onboarding track and the email drip track, plus the composer that
// selects the message for a given campaign day.
//
// The tables are immutable configuration loaded once at process start and
// passed explicitly into the scheduler; nothing mutates them at runtime.
package catalog

import "github.com/pxlchk1/trailnotify/internal/domain"

// Message type keys for event-triggered notifications. These are not part of
// either campaign track; the event adapter enqueues them directly.
const (
	TypeTripNoPackingList = "trip_no_packing_list_24h"
	TypeTripReminder3d    = "trip_reminder_3d"
	TypeTripReminder1d    = "trip_reminder_1d"

	TypeInactiveComeback      = "inactive_comeback"
	TypeInactiveComebackEmail = "inactive_comeback_email"
)

// MessageDefinition is one entry in a campaign track.
type MessageDefinition struct {
	// Day is the 1-based offset from the user's enrollment instant.
	Day  int
	Type string

	// Push payload.
	Title    string
	Body     string
	Deeplink string

	// Email payload: template id resolved by the email renderer.
	TemplateID string

	// SuppressIfCompleted names a completed-actions key; when the user has
	// already performed that action the entry is skipped for the day.
	SuppressIfCompleted string
}

// Catalog is the pair of campaign tracks. The push track spans the full
// 30-day onboarding window; the email drip track is shorter and sparser.
type Catalog struct {
	push  []MessageDefinition
	email []MessageDefinition

	pushHorizon  int
	emailHorizon int
}

// Horizon returns the last campaign day of the given track. Past this day
// the track has no more candidates for the user.
func (c *Catalog) Horizon(ch domain.Channel) int {
	if ch == domain.ChannelEmail {
		return c.emailHorizon
	}
	return c.pushHorizon
}

// MaxHorizon returns the horizon of the longest track. A user whose campaign
// day exceeds this is marked campaign-complete.
func (c *Catalog) MaxHorizon() int {
	if c.emailHorizon > c.pushHorizon {
		return c.emailHorizon
	}
	return c.pushHorizon
}

// MessageForDay returns the first entry of the track whose day matches and
// whose skip rule (if any) is not already satisfied, or nil when the day has
// no candidate.
func (c *Catalog) MessageForDay(ch domain.Channel, day int, completed map[string]bool) *MessageDefinition {
	track := c.push
	if ch == domain.ChannelEmail {
		track = c.email
	}
	for i := range track {
		def := &track[i]
		if def.Day != day {
			continue
		}
		if def.SuppressIfCompleted != "" && completed[def.SuppressIfCompleted] {
			continue
		}
		return def
	}
	return nil
}

// Payload converts a definition into the queue item payload for its channel.
func (d *MessageDefinition) Payload(ch domain.Channel) domain.Payload {
	if ch == domain.ChannelEmail {
		return domain.Payload{TemplateID: d.TemplateID}
	}
	return domain.Payload{Title: d.Title, Body: d.Body, Deeplink: d.Deeplink}
}

// Default returns the built-in onboarding catalog.
func Default() *Catalog {
	return &Catalog{
		push:         pushTrack,
		email:        emailTrack,
		pushHorizon:  30,
		emailHorizon: 21,
	}
}

// pushTrack is the 30-day push onboarding cadence. Wording is static
// configuration; the engine only cares about day, type, and skip rules.
var pushTrack = []MessageDefinition{
	{Day: 1, Type: "onboarding_day01_welcome",
		Title: "Welcome to the trailhead", Body: "Plan your first trip and we'll handle the checklists.", Deeplink: "app://trips/new"},
	{Day: 2, Type: "onboarding_day02_first_trip",
		Title: "Where to first?", Body: "Create a trip to unlock packing lists and reminders.", Deeplink: "app://trips/new",
		SuppressIfCompleted: domain.ActionCreatedTrip},
	{Day: 3, Type: "onboarding_day03_packing_list",
		Title: "Pack like a pro", Body: "Start a packing list so nothing gets left in the garage.", Deeplink: "app://packing",
		SuppressIfCompleted: domain.ActionCompletedPackingList},
	{Day: 5, Type: "onboarding_day05_gear_closet",
		Title: "Stock your gear closet", Body: "Add your gear once, reuse it on every trip.", Deeplink: "app://gear",
		SuppressIfCompleted: domain.ActionAddedGearItem},
	{Day: 7, Type: "onboarding_day07_week_one",
		Title: "One week in", Body: "Trips, lists, gear - you're closer to the campfire than you think.", Deeplink: "app://home"},
	{Day: 10, Type: "onboarding_day10_trip_nudge",
		Title: "Your next trip is waiting", Body: "Weekends fill up fast. Get a date on the calendar.", Deeplink: "app://trips/new",
		SuppressIfCompleted: domain.ActionCreatedTrip},
	{Day: 14, Type: "onboarding_day14_checklist",
		Title: "Checklist check-in", Body: "A finished packing list means a calm departure morning.", Deeplink: "app://packing",
		SuppressIfCompleted: domain.ActionCompletedPackingList},
	{Day: 18, Type: "onboarding_day18_gear_nudge",
		Title: "What's in your pack?", Body: "Track your gear and its weight before the next haul.", Deeplink: "app://gear",
		SuppressIfCompleted: domain.ActionAddedGearItem},
	{Day: 22, Type: "onboarding_day22_explore",
		Title: "Somewhere new", Body: "Browse trip ideas from campers near you.", Deeplink: "app://explore"},
	{Day: 26, Type: "onboarding_day26_almost_there",
		Title: "Almost a regular", Body: "A month of planning smarter. Keep it going.", Deeplink: "app://home"},
	{Day: 30, Type: "onboarding_day30_wrap",
		Title: "You made it", Body: "Onboarding's done. The trail isn't going anywhere - neither are we.", Deeplink: "app://home"},
}

// emailTrack is the sparser drip cadence. Each entry maps to a liquid
// template rendered by the email sender.
var emailTrack = []MessageDefinition{
	{Day: 1, Type: "drip_day01_welcome", TemplateID: "welcome"},
	{Day: 2, Type: "drip_day02_getting_started", TemplateID: "getting_started",
		SuppressIfCompleted: domain.ActionCreatedTrip},
	{Day: 4, Type: "drip_day04_packing_tips", TemplateID: "packing_tips",
		SuppressIfCompleted: domain.ActionCompletedPackingList},
	{Day: 7, Type: "drip_day07_gear_guide", TemplateID: "gear_guide",
		SuppressIfCompleted: domain.ActionAddedGearItem},
	{Day: 11, Type: "drip_day11_trip_ideas", TemplateID: "trip_ideas"},
	{Day: 16, Type: "drip_day16_community", TemplateID: "community"},
	{Day: 21, Type: "drip_day21_wrap", TemplateID: "drip_wrap"},
}
