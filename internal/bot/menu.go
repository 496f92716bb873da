package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"collicasa-bot/internal/backend"
)

const (
	menuOpenPedestrian = "🚶 Open pedestrian"
	menuOpenVisits     = "🚗 Open visits"
	menuSnapPedestrian = "📷 Pedestrian cam"
	menuSnapVisits     = "📷 Visits cam"
	menuSnapFrontDoor  = "🚪 Front door cam"
	menuHistory        = "🗂 History"

	textInternalError = "⚠️ An error occurred while processing your request. Please try again later or contact support."
)

var gateLabels = map[backend.Gate]string{
	backend.GatePedestrian: "pedestrian",
	backend.GateVisits:     "visits",
}

var cameraLabels = map[backend.Camera]string{
	backend.CameraPedestrian: "pedestrian",
	backend.CameraVisits:     "visits",
	backend.CameraFrontDoor:  "front door",
}

type commandInfo struct {
	name        string
	description string
}

var commandList = []commandInfo{
	{"start", "Authenticate and show this help message"},
	{"open_pedestrian", "Open the pedestrian gate"},
	{"open_visits", "Open the visits gate"},
	{"snapshot_pedestrian", "Get pedestrian camera snapshot"},
	{"snapshot_visits", "Get visits camera snapshot"},
	{"snapshot_front_door", "Get front door camera snapshot (admin only)"},
	{"history", "Show your recent requests"},
	{"status", "Show session and backend status"},
	{"logout", "Forget your session"},
	{"help", "List commands"},
}

func commandHelp() string {
	var sb strings.Builder
	for i, c := range commandList {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("/" + c.name + " - " + c.description)
	}
	return sb.String()
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuOpenPedestrian),
			tgbotapi.NewKeyboardButton(menuOpenVisits),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuSnapPedestrian),
			tgbotapi.NewKeyboardButton(menuSnapVisits),
			tgbotapi.NewKeyboardButton(menuSnapFrontDoor),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuHistory),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func actionKeyboard(label, data string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, data),
		),
	)
}
