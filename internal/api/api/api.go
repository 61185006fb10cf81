package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"eventdesk/cmd/middleware"
	"eventdesk/internal/service"
)

type Routers struct {
	Service  service.Service
	StaffKey string
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())

	apiGroup := app.Group("/v1")

	apiGroup.GET("/events", r.Service.GetAllEvents)
	apiGroup.GET("/events/:id", r.Service.GetEvent)
	apiGroup.GET("/events/:id/schedule", r.Service.GetSchedule)
	apiGroup.GET("/events/:id/participant-types", r.Service.GetParticipantTypes)
	apiGroup.POST("/events/:id/register", r.Service.SubmitRegistration)
	apiGroup.POST("/events/:id/withdraw", r.Service.WithdrawRegistration)

	staff := apiGroup.Group("/staff")
	staff.Use(middleware.StaffKey(r.StaffKey))

	staff.POST("/events", r.Service.CreateEvent)
	staff.PATCH("/events/:id", r.Service.UpdateEvent)
	staff.POST("/events/:id/publish", r.Service.PublishEvent)
	staff.POST("/events/:id/cancel", r.Service.CancelEvent)

	staff.POST("/events/:id/sessions", r.Service.CreateSession)
	staff.PUT("/sessions/:id", r.Service.UpdateSession)
	staff.DELETE("/sessions/:id", r.Service.DeleteSession)

	staff.POST("/locations", r.Service.CreateLocation)
	staff.GET("/locations", r.Service.GetLocations)

	staff.POST("/events/:id/participant-types", r.Service.CreateParticipantType)
	staff.PUT("/events/:id/participant-types/:tid", r.Service.UpdateParticipantType)
	staff.DELETE("/events/:id/participant-types/:tid", r.Service.DeleteParticipantType)

	staff.GET("/events/:id/registrations", r.Service.GetRegistrations)
	staff.PUT("/events/:id/registrations/:ref/status", r.Service.SetRegistrationStatus)
	staff.GET("/events/:id/report", r.Service.ExportRegistrations)

	return app
}
