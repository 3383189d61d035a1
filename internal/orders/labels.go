package orders

// History labels are frozen into OrderHistory.SnapshotStatus when written.
const (
	LabelOrderCreated      = "Pedido creado"
	LabelPaymentConfirmed  = "Pago confirmado"
	LabelPaymentFailed     = "Pago fallido"
	LabelOrderExpired      = "Pedido expirado"
	LabelOrderCancelled    = "Pedido cancelado"
	LabelReturnRequested   = "Devolución solicitada"
	LabelReturnProcessed   = "Devolución procesada"
	LabelReturnPartial     = "Devolución parcial"
	LabelPreparing         = "En preparación"
	LabelShipped           = "Enviado"
	LabelReadyForPickup    = "Listo para recoger"
	LabelDelivered         = "Entregado"
	LabelPaidOnClosedOrder = "Pago recibido en pedido cerrado"
)
