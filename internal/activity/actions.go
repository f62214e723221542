package activity

// Action names written by the application.
const (
	ActionLoginSuccess = "LOGIN_SUCCESS"
	ActionLoginFailed  = "LOGIN_FAILED"
	ActionRegister     = "REGISTER"
	ActionLogout       = "LOGOUT"
	ActionTokenRefresh = "TOKEN_REFRESH"

	ActionBookingCreate       = "BOOKING_CREATE"
	ActionBookingCreateFailed = "BOOKING_CREATE_FAILED"
	ActionBookingCancel       = "BOOKING_CANCEL"
	ActionBookingStatus       = "BOOKING_STATUS_UPDATE"
	ActionBookingExpire       = "BOOKING_EXPIRE"
	ActionBookingPurge        = "BOOKING_DELETE"

	ActionMovieCreate    = "MOVIE_CREATE"
	ActionShowtimeCreate = "SHOWTIME_CREATE"
	ActionShowtimeDelete = "SHOWTIME_DELETE"

	ActionLogsClear   = "LOGS_CLEAR"
	ActionLogsExport  = "LOGS_EXPORT"
	ActionAPIRequest  = "API_REQUEST"
	ActionSweep       = "BOOKING_SWEEP"
	ActionSweepFailed = "BOOKING_SWEEP_FAILED"
)
