package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitalhq/pulse/internal/achievement"
	"github.com/vitalhq/pulse/internal/config"
	"github.com/vitalhq/pulse/internal/goal"
	"github.com/vitalhq/pulse/internal/meal"
	"github.com/vitalhq/pulse/internal/replay"
	"github.com/vitalhq/pulse/internal/summary"
	"github.com/vitalhq/pulse/internal/user"
	"github.com/vitalhq/pulse/internal/workout"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	genID          *snowflake.Node
	userSvc        *user.Service
	mealSvc        *meal.Service
	workoutSvc     *workout.Service
	summarySvc     *summary.Service
	goalSvc        *goal.Service
	achievementSvc *achievement.Service
	rebuilder      *replay.Rebuilder
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	GenID          *snowflake.Node
	UserSvc        *user.Service
	MealSvc        *meal.Service
	WorkoutSvc     *workout.Service
	SummarySvc     *summary.Service
	GoalSvc        *goal.Service
	AchievementSvc *achievement.Service
	Rebuilder      *replay.Rebuilder
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		genID:          p.GenID,
		userSvc:        p.UserSvc,
		mealSvc:        p.MealSvc,
		workoutSvc:     p.WorkoutSvc,
		summarySvc:     p.SummarySvc,
		goalSvc:        p.GoalSvc,
		achievementSvc: p.AchievementSvc,
		rebuilder:      p.Rebuilder,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Users --------
	api.POST("/users", s.RegisterUser)
	api.GET("/users/:id", s.GetUser)
	api.POST("/users/:id/weight", s.RecordWeight)

	// -------- Meals --------
	api.POST("/meals", s.CreateMeal)
	api.GET("/meals", s.ListMeals)
	api.GET("/meals/:id", s.GetMeal)
	api.DELETE("/meals/:id", s.DeleteMeal)

	// -------- Workouts --------
	api.POST("/workouts", s.StartWorkout)
	api.GET("/workouts/:id", s.GetWorkout)
	api.POST("/workouts/:id/complete", s.CompleteWorkout)
	api.POST("/workouts/:id/cancel", s.CancelWorkout)
	api.DELETE("/workouts/:id", s.DeleteWorkout)

	// -------- Summaries --------
	api.GET("/users/:id/summary/daily", s.GetDailySummary)
	api.GET("/users/:id/summary/range", s.GetRangeSummary)
	api.GET("/users/:id/summary/weekly", s.GetWeeklySummary)
	api.GET("/users/:id/summary/monthly", s.GetMonthlySummary)

	// -------- Goals --------
	api.POST("/goals", s.CreateGoal)
	api.GET("/users/:id/goals", s.ListGoals)
	api.GET("/users/:id/goals/progress", s.GetGoalProgress)
	api.POST("/goals/:id/pause", s.PauseGoal)
	api.POST("/goals/:id/resume", s.ResumeGoal)
	api.POST("/goals/:id/abandon", s.AbandonGoal)

	// -------- Achievements --------
	api.GET("/users/:id/achievements", s.ListAchievements)

	// Operational escape hatch: recompute a user's rollup window from
	// the domain tables.
	api.POST("/internal/rebuild-summary", s.RebuildSummary)
}
