package store

// Campaign ENUMs
const (
	CampaignStatusDraft      = "draft"
	CampaignStatusScheduled  = "scheduled"
	CampaignStatusProcessing = "processing"
	CampaignStatusPaused     = "paused"
	CampaignStatusCompleted  = "completed"
	CampaignStatusCanceled   = "canceled"
)

// Lot ENUMs
const (
	LotStatusPending    = "pending"
	LotStatusProcessing = "processing"
	LotStatusDone       = "done"
	LotStatusFailed     = "failed"
)

// Dispatch record ENUMs
const (
	DispatchStatusPending   = "pending"
	DispatchStatusSent      = "sent"
	DispatchStatusDelivered = "delivered"
	DispatchStatusFailed    = "failed"
	DispatchStatusCanceled  = "canceled"
)

// Gateway instance ENUMs
const (
	InstanceStatusConnected    = "connected"
	InstanceStatusDisconnected = "disconnected"
	InstanceStatusUnknown      = "unknown"
)

const (
	ProviderEvolution = "evolution"
	ProviderWAHA      = "waha"
	ProviderTelegram  = "telegram"
	ProviderTwilio    = "twilio"
)

// Schedule ENUMs. Status values keep the wire strings of the original
// operator dashboard, which the web UI still expects.
const (
	ScheduleStatusScheduled = "agendado"
	ScheduleStatusRunning   = "executando"
	ScheduleStatusPaused    = "pausado"
	ScheduleStatusCompleted = "concluido"
	ScheduleStatusCanceled  = "cancelado"
)

const (
	ScheduleKindCampaign   = "campaign"
	ScheduleKindMaturation = "maturation"
)
