package i18n

// englishMessages contains all English translations.
var englishMessages = map[string]string{
	// Challenge
	"challenge.flood_pending": "Pending verification: %d\n",
	"challenge.grant_rights": "New member %s detected, but the bot is not an administrator and cannot act. " +
		"Please make the bot an administrator with the right to ban users.",

	// Verification
	"verify.not_yours":          "Not your captcha",
	"verify.banned_for":         "Banned for %d seconds",
	"verify.banned_permanently": "Banned permanently",
	"verify.already_resolved":   "This challenge is already resolved",
	"verify.malformed":          "Fail",

	// Moderation commands
	"ban.reply_required":   "Please reply to a message of the user.",
	"ban.cannot_ban_admin": "Cannot ban an administrator.",
	"admins.wait":          "Please wait %.3f seconds",
	"admins.none":          "No administrators found.",

	// Informational commands
	"start.private": "Hi! Add me to a group and make me an administrator with the right to ban users. " +
		"I will ask every new member a question before they can write.",
	"start.group": "I am running. Administrators can use /settings to tune the challenge.",
	"source.text": "Source code: %s",

	// Settings menu
	"settings.groups_only":       "Settings are only available in groups",
	"settings.choose":            "Choose a setting",
	"settings.saved":             "Settings saved successfully\n\n",
	"settings.invalid":           "Your input is invalid, please try again\n\n",
	"settings.cancelled":         "Setting cancelled",
	"settings.nothing_to_cancel": "There is no active setting to cancel",
	"settings.option":            "Setting: %s\n",
	"settings.current":           "Current value: ",
	"settings.restore_default":   "Restore default",
	"settings.add_new":           "Add new",
	"settings.delete_item":       "Delete %d:%s",
	"settings.toggle":            "Toggle",
	"settings.change":            "Change",
	"settings.back":              "Back",
	"settings.state":             "State: %s",
	"settings.state_on":          "Enabled",
	"settings.state_off":         "Disabled",
	"settings.question":          "Question %2d: %s",
	"settings.correct":           "Correct answer: %s",
	"settings.wrong":             "Wrong answer: %s",
	"settings.variant":           "Variant: %s",
	"settings.description":       "Description:\n%s",
	"settings.editing": "You are setting a new value.\n" +
		"Please enter a valid value within 120 seconds. Send /cancel to abort.",
	"settings.success":    "Success",
	"settings.error":      "Error",
	"settings.unexpected": "Unexpected %s",

	// Generic
	"error.generic": "Something went wrong. Please try again.",
}
