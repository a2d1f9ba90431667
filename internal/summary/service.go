package summary

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitalhq/pulse/internal/cache"
	"go.uber.org/zap"
)

// DayView is the dashboard shape of one rollup row. Totals are clamped
// to zero for presentation; the store keeps transiently negative values
// untouched so reordered deletions still cancel out.
type DayView struct {
	UserID         int64           `json:"user_id,string"`
	Date           string          `json:"date"`
	CaloriesIn     int             `json:"calories_in"`
	CaloriesOut    int             `json:"calories_out"`
	NetCalories    int             `json:"net_calories"`
	ProteinG       decimal.Decimal `json:"protein_g"`
	CarbsG         decimal.Decimal `json:"carbs_g"`
	FatG           decimal.Decimal `json:"fat_g"`
	FiberG         decimal.Decimal `json:"fiber_g"`
	MealCount      int             `json:"meal_count"`
	WorkoutCount   int             `json:"workout_count"`
	WorkoutMinutes int             `json:"workout_minutes"`
	Revision       int64           `json:"revision"`
}

// RangeAverages are computed server-side across every day of the
// range, gap days included.
type RangeAverages struct {
	CaloriesIn     float64         `json:"calories_in"`
	CaloriesOut    float64         `json:"calories_out"`
	NetCalories    float64         `json:"net_calories"`
	ProteinG       decimal.Decimal `json:"protein_g"`
	CarbsG         decimal.Decimal `json:"carbs_g"`
	FatG           decimal.Decimal `json:"fat_g"`
	WorkoutMinutes float64         `json:"workout_minutes"`
}

// RangeView is the dashboard shape of a date range.
type RangeView struct {
	UserID   int64         `json:"user_id,string"`
	Start    string        `json:"start"`
	End      string        `json:"end"`
	Days     []DayView     `json:"days"`
	Averages RangeAverages `json:"averages"`
}

// Service composes dashboard reads from the rollup store through the
// read-side cache. Missing dates always come back as zero-valued
// shapes, never as errors.
type Service struct {
	store *Store
	cache *cache.SummaryCache
	log   *zap.Logger
}

func NewService(store *Store, summaryCache *cache.SummaryCache, log *zap.Logger) *Service {
	return &Service{
		store: store,
		cache: summaryCache,
		log:   log.Named("summary.service"),
	}
}

// Daily returns the rollup view for one date.
func (s *Service) Daily(ctx context.Context, userID int64, date time.Time) (DayView, error) {
	date = DateOf(date)
	key := cache.DailyKey(userID, date.Format("2006-01-02"))

	if data, ok := s.cache.Get(ctx, key); ok {
		var view DayView
		if err := json.Unmarshal(data, &view); err == nil {
			return view, nil
		}
	}

	row, err := s.store.Read(ctx, userID, date)
	if err != nil {
		return DayView{}, err
	}
	view := renderDay(row)

	if data, err := json.Marshal(view); err == nil {
		s.cache.Set(ctx, key, data)
	}
	return view, nil
}

// Range returns gap-filled day views with server-side averages.
// Arbitrary ranges bypass the cache; weekly and monthly views go
// through it.
func (s *Service) Range(ctx context.Context, userID int64, start, end time.Time) (RangeView, error) {
	rows, err := s.store.ReadRange(ctx, userID, start, end)
	if err != nil {
		return RangeView{}, err
	}
	return renderRange(userID, DateOf(start), DateOf(end), rows), nil
}

// Weekly returns the ISO week containing date.
func (s *Service) Weekly(ctx context.Context, userID int64, date time.Time) (RangeView, error) {
	date = DateOf(date)
	year, week := date.ISOWeek()
	key := cache.WeekKey(userID, year, week)

	if data, ok := s.cache.Get(ctx, key); ok {
		var view RangeView
		if err := json.Unmarshal(data, &view); err == nil {
			return view, nil
		}
	}

	start := date.AddDate(0, 0, -(isoWeekday(date) - 1))
	view, err := s.Range(ctx, userID, start, start.AddDate(0, 0, 6))
	if err != nil {
		return RangeView{}, err
	}

	if data, err := json.Marshal(view); err == nil {
		s.cache.Set(ctx, key, data)
	}
	return view, nil
}

// Monthly returns the calendar month containing date.
func (s *Service) Monthly(ctx context.Context, userID int64, date time.Time) (RangeView, error) {
	date = DateOf(date)
	key := cache.MonthKey(userID, date.Year(), date.Month())

	if data, ok := s.cache.Get(ctx, key); ok {
		var view RangeView
		if err := json.Unmarshal(data, &view); err == nil {
			return view, nil
		}
	}

	start := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	view, err := s.Range(ctx, userID, start, end)
	if err != nil {
		return RangeView{}, err
	}

	if data, err := json.Marshal(view); err == nil {
		s.cache.Set(ctx, key, data)
	}
	return view, nil
}

func renderDay(row DailySummary) DayView {
	return DayView{
		UserID:         row.UserID,
		Date:           DateOf(row.Date).Format("2006-01-02"),
		CaloriesIn:     clampInt(row.CaloriesIn),
		CaloriesOut:    clampInt(row.CaloriesOut),
		NetCalories:    row.NetCalories(),
		ProteinG:       clampDecimal(row.ProteinG),
		CarbsG:         clampDecimal(row.CarbsG),
		FatG:           clampDecimal(row.FatG),
		FiberG:         clampDecimal(row.FiberG),
		MealCount:      clampInt(row.MealCount),
		WorkoutCount:   clampInt(row.WorkoutCount),
		WorkoutMinutes: clampInt(row.WorkoutMinutes),
		Revision:       row.Revision,
	}
}

func renderRange(userID int64, start, end time.Time, rows []DailySummary) RangeView {
	view := RangeView{
		UserID: userID,
		Start:  start.Format("2006-01-02"),
		End:    end.Format("2006-01-02"),
		Days:   make([]DayView, 0, len(rows)),
	}

	var inSum, outSum, netSum, minutesSum int
	proteinSum := decimal.Zero
	carbsSum := decimal.Zero
	fatSum := decimal.Zero

	for _, row := range rows {
		day := renderDay(row)
		view.Days = append(view.Days, day)
		inSum += day.CaloriesIn
		outSum += day.CaloriesOut
		netSum += day.NetCalories
		minutesSum += day.WorkoutMinutes
		proteinSum = proteinSum.Add(day.ProteinG)
		carbsSum = carbsSum.Add(day.CarbsG)
		fatSum = fatSum.Add(day.FatG)
	}

	if n := len(rows); n > 0 {
		count := decimal.NewFromInt(int64(n))
		view.Averages = RangeAverages{
			CaloriesIn:     float64(inSum) / float64(n),
			CaloriesOut:    float64(outSum) / float64(n),
			NetCalories:    float64(netSum) / float64(n),
			ProteinG:       proteinSum.Div(count).Round(2),
			CarbsG:         carbsSum.Div(count).Round(2),
			FatG:           fatSum.Div(count).Round(2),
			WorkoutMinutes: float64(minutesSum) / float64(n),
		}
	}
	return view
}

func clampInt(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func clampDecimal(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
