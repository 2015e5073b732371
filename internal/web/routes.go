package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance/internal/auth"
	"github.com/kozaktomas/attendance/internal/web/handlers"
	"github.com/kozaktomas/attendance/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	authHandler := handlers.NewAuthHandler(s.accounts, s.logger)
	employeeHandler := handlers.NewEmployeeHandler(s.accounts, s.logger)
	employerHandler := handlers.NewEmployerHandler(s.accounts, s.logger)
	attendanceHandler := handlers.NewAttendanceHandler(s.accounts, s.logger)

	requireAuth := middleware.RequireAuth(s.tokens, s.logger)

	// Health check (no auth required)
	s.router.Get("/", handlers.Root)
	s.router.Get("/health", handlers.HealthCheck)

	// Login
	s.router.Post("/login/password", authHandler.LoginPassword)
	s.router.Post("/login/face", authHandler.LoginFace(auth.RoleEmployee, auth.RoleEmployer))
	s.router.Post("/login/face/employee", authHandler.LoginFace(auth.RoleEmployee))
	s.router.Post("/login/face/employer", authHandler.LoginFace(auth.RoleEmployer))

	s.router.Route("/employee", func(r chi.Router) {
		r.Post("/register", employeeHandler.Register)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(middleware.RequireRole(auth.RoleEmployee))

			r.Get("/details", employeeHandler.Details)
			r.Get("/attendance/summary", employeeHandler.Summary)
			r.Get("/attendance/history", employeeHandler.History)
		})
	})

	s.router.Route("/employer", func(r chi.Router) {
		r.Post("/register", employerHandler.Register)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(middleware.RequireRole(auth.RoleEmployer))

			r.Get("/details", employerHandler.Details)
			r.Get("/employees", employerHandler.Employees)
			r.Post("/pay_employee/{id}", employerHandler.PayEmployee)
		})
	})

	s.router.Route("/attendance", func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(middleware.RequireRole(auth.RoleEmployee))

		r.Post("/checkin", attendanceHandler.CheckIn)
		r.Post("/checkout", attendanceHandler.CheckOut)
	})
}
