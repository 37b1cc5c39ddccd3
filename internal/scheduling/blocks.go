package scheduling

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateBlockInput describes a block request from the dashboard. Recurring
// blocks name one or more weekdays; specific blocks name one date.
type CreateBlockInput struct {
	ClinicID     string    `json:"clinic_id" validate:"required"`
	Title        string    `json:"title" validate:"max=200"`
	Kind         BlockKind `json:"kind" validate:"required,oneof=recurring specific"`
	Days         []int     `json:"days" validate:"omitempty,dive,gte=0,lte=6"`
	SpecificDate *Date     `json:"specific_date,omitempty"`
	Start        Clock     `json:"start_time"`
	End          Clock     `json:"end_time"`
}

// CreateBlock writes one row per distinct selected weekday for a recurring
// block, or a single row for a specific-date block. Overlapping blocks are
// not merged.
func (o *Orchestrator) CreateBlock(ctx context.Context, in CreateBlockInput) ([]Block, error) {
	if err := validateBlock(in); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Blocked"
	}
	now := o.now()
	newBlock := func() Block {
		return Block{
			ID:        uuid.NewString(),
			ClinicID:  in.ClinicID,
			Title:     title,
			Kind:      in.Kind,
			Start:     in.Start,
			End:       in.End,
			CreatedAt: now,
		}
	}

	var blocks []Block
	switch in.Kind {
	case BlockRecurring:
		for _, day := range distinctDays(in.Days) {
			b := newBlock()
			d := day
			b.DayOfWeek = &d
			blocks = append(blocks, b)
		}
	case BlockSpecific:
		b := newBlock()
		date := *in.SpecificDate
		b.SpecificDate = &date
		blocks = append(blocks, b)
	}

	if err := o.store.InsertBlocks(ctx, blocks); err != nil {
		return nil, internal("insert blocks", err)
	}
	o.logger.Info("schedule block created", "clinic_id", in.ClinicID, "kind", in.Kind, "rows", len(blocks))
	return blocks, nil
}

// DeleteBlock removes exactly one block row. Operators use it to clear a
// block before booking over it.
func (o *Orchestrator) DeleteBlock(ctx context.Context, clinicID, id string) error {
	if err := o.store.DeleteBlock(ctx, clinicID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return &NotFoundError{Resource: "block"}
		}
		return internal("delete block", err)
	}
	o.logger.Info("schedule block deleted", "clinic_id", clinicID, "block_id", id)
	return nil
}

func (o *Orchestrator) ListBlocks(ctx context.Context, clinicID string) ([]Block, error) {
	blocks, err := o.store.ListBlocks(ctx, clinicID)
	if err != nil {
		return nil, internal("list blocks", err)
	}
	return blocks, nil
}

// WorkingHours returns the clinic's weekly opening windows.
func (o *Orchestrator) WorkingHours(ctx context.Context, clinicID string) ([]WorkingHours, error) {
	hours, err := o.store.ListWorkingHours(ctx, clinicID)
	if err != nil {
		return nil, internal("list working hours", err)
	}
	return hours, nil
}

// SetWorkingHours upserts opening windows, one row per weekday.
func (o *Orchestrator) SetWorkingHours(ctx context.Context, clinicID string, hours []WorkingHours) error {
	verr := &ValidationError{}
	if strings.TrimSpace(clinicID) == "" {
		verr.Add("clinic_id", "is required")
	}
	seen := make(map[time.Weekday]bool, len(hours))
	for _, wh := range hours {
		if wh.Weekday < time.Sunday || wh.Weekday > time.Saturday {
			verr.Add("weekday", "must be between 0 and 6")
			continue
		}
		if seen[wh.Weekday] {
			verr.Add("weekday", "is listed more than once")
		}
		seen[wh.Weekday] = true
		if !wh.Open.Valid() || !wh.Close.Valid() {
			verr.Add("open", "must be between 00:00 and 23:59")
		} else if wh.Active && wh.Close <= wh.Open {
			verr.Add("close", "must be after open")
		}
	}
	if err := verr.OrNil(); err != nil {
		return err
	}
	if err := o.store.UpsertWorkingHours(ctx, clinicID, hours); err != nil {
		return internal("upsert working hours", err)
	}
	return nil
}

func validateBlock(in CreateBlockInput) error {
	verr := &ValidationError{}
	checkStruct(in, verr)
	if !in.Start.Valid() {
		verr.Add("start_time", "must be between 00:00 and 23:59")
	}
	if in.End <= in.Start || in.End > minutesPerDay {
		verr.Add("end_time", "must be after start_time")
	}
	switch in.Kind {
	case BlockRecurring:
		if len(in.Days) == 0 {
			verr.Add("days", "at least one weekday is required")
		}
	case BlockSpecific:
		if in.SpecificDate == nil || in.SpecificDate.IsZero() {
			verr.Add("specific_date", "is required")
		}
	}
	return verr.OrNil()
}

func distinctDays(days []int) []int {
	seen := make(map[int]bool, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out
}
