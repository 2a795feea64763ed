package api

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	s.router.GET("/status", s.statusHandler.Status)
	s.router.GET("/tracks", s.statusHandler.Tracks)

	if s.alertsHandler != nil {
		s.router.GET("/alerts", s.alertsHandler.List)
	}

	if s.streamHandler != nil {
		s.router.GET("/stream", s.streamHandler.Stream)
		s.router.GET("/snapshot", s.streamHandler.Snapshot)
	}

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
	}
}
