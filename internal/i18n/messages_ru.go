package i18n

// russianMessages contains all Russian translations.
var russianMessages = map[string]string{
	// Challenge
	"challenge.flood_pending": "Ожидающих проверки пользователей: %d\n",
	"challenge.grant_rights": "Обнаружен новый участник: %s, но бот не является администратором и не может выполнить " +
		"необходимые действия. Пожалуйста, назначьте бота администратором и предоставьте права на блокировку пользователей.",

	// Verification
	"verify.not_yours":          "Это не ваша проверка",
	"verify.banned_for":         "Заблокирован на %d секунд",
	"verify.banned_permanently": "Заблокирован навсегда",
	"verify.already_resolved":   "Проверка уже завершена",
	"verify.malformed":          "Ошибка",

	// Moderation commands
	"ban.reply_required":   "Пожалуйста, ответьте на сообщение пользователя.",
	"ban.cannot_ban_admin": "Невозможно заблокировать администратора.",
	"admins.wait":          "Пожалуйста, подождите %.3f секунд",
	"admins.none":          "Администраторы не найдены.",

	// Informational commands
	"start.private": "Привет! Добавьте меня в группу и назначьте администратором с правом блокировки пользователей. " +
		"Я буду задавать каждому новому участнику вопрос, прежде чем он сможет писать.",
	"start.group": "Я работаю. Администраторы могут использовать /settings для настройки проверки.",
	"source.text": "Исходный код: %s",

	// Settings menu
	"settings.groups_only":       "Настройки доступны только в группах",
	"settings.choose":            "Выберите настройку",
	"settings.saved":             "Настройки успешно сохранены\n\n",
	"settings.invalid":           "Ваш ввод некорректен, попробуйте еще раз\n\n",
	"settings.cancelled":         "Настройка отменена",
	"settings.nothing_to_cancel": "Нет активных настроек для отмены",
	"settings.option":            "Настройка: %s\n",
	"settings.current":           "Текущее значение: ",
	"settings.restore_default":   "Восстановить значение по умолчанию",
	"settings.add_new":           "Добавить новый",
	"settings.delete_item":       "Удалить %d:%s",
	"settings.toggle":            "Переключить",
	"settings.change":            "Изменить",
	"settings.back":              "Назад",
	"settings.state":             "Состояние: %s",
	"settings.state_on":          "Включено",
	"settings.state_off":         "Выключено",
	"settings.question":          "Вопрос %2d: %s",
	"settings.correct":           "Правильный ответ: %s",
	"settings.wrong":             "Неправильный ответ: %s",
	"settings.variant":           "Вариант: %s",
	"settings.description":       "Описание:\n%s",
	"settings.editing": "Вы настраиваете новое значение\n" +
		"Пожалуйста, введите корректное значение в течение 120 секунд. Для отмены введите /cancel.",
	"settings.success":    "Успешно",
	"settings.error":      "Ошибка",
	"settings.unexpected": "Неожиданное значение %s",

	// Generic
	"error.generic": "Что-то пошло не так. Попробуйте еще раз.",
}
