package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrForbidden     ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrRulesRequired  ErrCode = "RULES_NOT_ACCEPTED"

	// ─── Session ───────────────────────────────────────────────────────
	ErrSessionNotFound    ErrCode = "SESSION_NOT_FOUND"
	ErrAlreadySubmitted   ErrCode = "ALREADY_SUBMITTED"
	ErrQuizUnavailable    ErrCode = "QUIZ_UNAVAILABLE"
	ErrBackendUnavailable ErrCode = "BACKEND_UNAVAILABLE"
	ErrInvalidTransition  ErrCode = "INVALID_TRANSITION"
	ErrIntegrityViolation ErrCode = "INTEGRITY_VIOLATION"
	ErrSubmitInFlight     ErrCode = "SUBMIT_IN_FLIGHT"
	ErrKeyDecode          ErrCode = "KEY_DECODE_ERROR"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrRulesRequired:
		return "Anda harus menyetujui tata tertib ujian terlebih dahulu."

	// ─── Session ───────────────────────────────────────────────────────
	case ErrSessionNotFound:
		return "Sesi ujian tidak ditemukan atau sudah berakhir."
	case ErrAlreadySubmitted:
		return "Kuis ini sudah dikumpulkan dari perangkat ini."
	case ErrQuizUnavailable:
		return "Kuis ini tidak aktif atau tidak memiliki pertanyaan."
	case ErrBackendUnavailable:
		return "Server kuis tidak dapat dihubungi. Silakan coba lagi."
	case ErrInvalidTransition:
		return "Tindakan ini tidak diperbolehkan pada tahap ujian saat ini."
	case ErrIntegrityViolation:
		return "Sesi dihentikan karena pelanggaran tata tertib."
	case ErrSubmitInFlight:
		return "Jawaban sedang dikumpulkan. Mohon tunggu."
	case ErrKeyDecode:
		return "Kunci jawaban tidak dapat dibaca."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
