package server

// registerRoutes mounts every endpoint under /api.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/health", s.health)
		api.GET("/help", s.help)
		api.POST("/command", s.command)
		api.POST("/echo", s.echo)
		api.GET("/titles/:id", s.getTitle)
		api.PUT("/titles/:id/:field", s.putTitle)
	}
}
