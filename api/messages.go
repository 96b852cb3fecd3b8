package api

import (
	"encoding/json"
	"net/http"

	"github.com/nvrengine/core/models"
	"github.com/nvrengine/core/supervisor"
)

// MessagesHandler accepts the fixed inbound message set and forwards
// each to the supervisor's message loop.
type MessagesHandler struct {
	sup *supervisor.Supervisor
}

func NewMessagesHandler(sup *supervisor.Supervisor) *MessagesHandler {
	return &MessagesHandler{sup: sup}
}

var messageKindByName = map[string]models.MessageKind{
	"SendEmail":                 models.MsgSendEmail,
	"SendPush":                  models.MsgSendPush,
	"TriggerIftt":               models.MsgTriggerIFTTT,
	"SendWebhook":               models.MsgSendWebhook,
	"SendClip":                  models.MsgSendClip,
	"SetCamResolution":          models.MsgSetCamResolution,
	"SetFtpSettings":            models.MsgSetFtpSettings,
	"SetLocalExportSettings":    models.MsgSetLocalExportSettings,
	"SetNotificationSettings":   models.MsgSetNotificationSettings,
	"SetServicesAuthToken":      models.MsgSetServicesAuthToken,
	"SetDebugConfig":            models.MsgSetDebugConfig,
	"FlushVideo":                models.MsgFlushVideo,
	"AddSavedTimes":             models.MsgAddSavedTimes,
}

// wireMessage is the JSON wire shape for an inbound message. Only the
// fields relevant to Kind need to be populated.
type wireMessage struct {
	Kind string `json:"kind"`

	Rule        string              `json:"rule,omitempty"`
	Camera      string              `json:"camera,omitempty"`
	Email       models.EmailSettings `json:"email,omitempty"`
	NumTriggers int                 `json:"numTriggers,omitempty"`
	ObjList     []int64             `json:"objList,omitempty"`
	FirstMs     int64               `json:"firstMs,omitempty"`
	LastMs      int64               `json:"lastMs,omitempty"`
	MessageID   string              `json:"messageId,omitempty"`

	Ms int64 `json:"ms,omitempty"`
	W  int   `json:"w,omitempty"`
	H  int   `json:"h,omitempty"`

	Webhook models.WebhookSettings `json:"webhook,omitempty"`
	Obj     int64                  `json:"obj,omitempty"`

	Ftp          models.FtpSettings          `json:"ftp,omitempty"`
	LocalExport  models.LocalExportSettings  `json:"localExport,omitempty"`
	Notification models.NotificationSettings `json:"notification,omitempty"`

	Token string            `json:"token,omitempty"`
	Debug map[string]string `json:"debug,omitempty"`

	Ranges []models.Range `json:"ranges,omitempty"`
}

// Post decodes and enqueues one inbound message.
func (h *MessagesHandler) Post(w http.ResponseWriter, r *http.Request) {
	var wm wireMessage
	if err := json.NewDecoder(r.Body).Decode(&wm); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kind, ok := messageKindByName[wm.Kind]
	if !ok {
		writeError(w, http.StatusBadRequest, "unrecognized message kind: "+wm.Kind)
		return
	}

	h.sup.Post(models.Message{
		Kind:         kind,
		Rule:         wm.Rule,
		Camera:       wm.Camera,
		Email:        wm.Email,
		NumTriggers:  wm.NumTriggers,
		ObjList:      wm.ObjList,
		FirstMs:      wm.FirstMs,
		LastMs:       wm.LastMs,
		MessageID:    wm.MessageID,
		Ms:           wm.Ms,
		W:            wm.W,
		H:            wm.H,
		Webhook:      wm.Webhook,
		Obj:          wm.Obj,
		Ftp:          wm.Ftp,
		LocalExport:  wm.LocalExport,
		Notification: wm.Notification,
		Token:        wm.Token,
		Debug:        wm.Debug,
		Ranges:       wm.Ranges,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
