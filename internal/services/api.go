package services

import (
	"fmt"

	"imageforge/config"
	"imageforge/internal/auth"
	"imageforge/internal/library"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

type Api struct {
	server *fiber.App

	gen      *GeneratorService
	lib      *library.Library
	verifier *auth.Verifier
	hub      *Hub

	port           string
	allowedOrigins string
	filesDir       string
}

func NewApi(gen *GeneratorService, lib *library.Library, verifier *auth.Verifier, hub *Hub, filesDir string, cfg config.ApiConfig) *Api {
	if cfg.AllowedOrigins == "" {
		cfg.AllowedOrigins = "*"
	}

	return &Api{
		server:         fiber.New(),
		gen:            gen,
		lib:            lib,
		verifier:       verifier,
		hub:            hub,
		port:           cfg.Port,
		allowedOrigins: cfg.AllowedOrigins,
		filesDir:       filesDir,
	}
}

func (a *Api) Start() {

	allowCredentials := a.allowedOrigins != "*"

	a.server.Use(cors.New(cors.Config{
		AllowOrigins:     a.allowedOrigins,
		AllowCredentials: allowCredentials,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Content-Type,Authorization,Accept,Origin",
	}))
	a.server.Use(RequestLogger())

	a.addRoutes()

	log.Fatal(a.server.Listen(fmt.Sprint(":", a.port)))
}

func (a *Api) addRoutes() {
	a.server.Add("GET", "/health", a.Health())
	a.server.Add("POST", "/generate", a.GenerateImage())
	a.server.Add("GET", "/images", a.ListImages())
	a.server.Add("POST", "/images/save", a.SaveImage())
	a.server.Add("DELETE", "/images/:id", a.DeleteImage())
	a.server.Add("POST", "/images/:id/favorite", a.ToggleFavorite())

	// durable copies of saved images
	a.server.Static("/files", a.filesDir)

	// websocket connection
	a.server.Use("/ws", a.WsUpgrade())
	a.server.Get("/ws/:id", a.Notifications())
}
