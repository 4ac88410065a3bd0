package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Labels of the bottom reply keyboard.
const (
	ButtonNew    = "Новые"
	ButtonTaken  = "В работе"
	ButtonStatus = "Статус"
)

// Callback payloads of the inline quick-actions keyboard.
const (
	CallbackNew    = "menu:new"
	CallbackTaken  = "menu:taken"
	CallbackStatus = "menu:status"
)

var menuKB = tgbotapi.NewReplyKeyboard(
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(ButtonNew),
		tgbotapi.NewKeyboardButton(ButtonTaken),
		tgbotapi.NewKeyboardButton(ButtonStatus),
	),
)

func init() {
	menuKB.OneTimeKeyboard = false
	menuKB.ResizeKeyboard = true
}

var inlineKB = tgbotapi.NewInlineKeyboardMarkup(
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(ButtonNew, CallbackNew),
		tgbotapi.NewInlineKeyboardButtonData(ButtonTaken, CallbackTaken),
		tgbotapi.NewInlineKeyboardButtonData(ButtonStatus, CallbackStatus),
	),
)

const helpText = `Available commands:
/start - Start the bot
/help - Show this help message
/status - Check status
/tickets - Выжимка по новым заявкам (как в расписании)
/new - Список всех новых заявок департамента
/taken - Список заявок в работе`
