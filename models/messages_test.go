package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageKindStringCoversEveryKind(t *testing.T) {
	cases := map[MessageKind]string{
		MsgQuit:                    "Quit",
		MsgSendEmail:               "SendEmail",
		MsgSendPush:                "SendPush",
		MsgTriggerIFTTT:            "TriggerIftt",
		MsgSendWebhook:             "SendWebhook",
		MsgSendClip:                "SendClip",
		MsgSetCamResolution:        "SetCamResolution",
		MsgSetFtpSettings:          "SetFtpSettings",
		MsgSetLocalExportSettings:  "SetLocalExportSettings",
		MsgSetNotificationSettings: "SetNotificationSettings",
		MsgSetServicesAuthToken:    "SetServicesAuthToken",
		MsgSetDebugConfig:          "SetDebugConfig",
		MsgFlushVideo:              "FlushVideo",
		MsgAddSavedTimes:           "AddSavedTimes",
	}
	for kind, want := range cases {
		require.Equal(t, want, kind.String())
	}
}

func TestMessageKindStringUnknownValue(t *testing.T) {
	require.Equal(t, "Unknown", MessageKind(999).String())
}
