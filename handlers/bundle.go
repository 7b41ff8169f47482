package handlers

// HandlerBundle groups all endpoint handlers into one struct for route
// registration.
type HandlerBundle struct {
	Chamado  *ChamadoHandler
	Payments *PaymentWebhookHandler
	Tracking *TrackingHandler
	Status   *StatusStreamHandler
}
