package api

// RegisterRequest представляет запрос на регистрацию нового сотрудника
type RegisterRequest struct {
	Username   string `json:"username"`       // username сотрудника
	Password   string `json:"password"`       // пароль (передается только по TLS, хранится bcrypt хешем)
	HospitalID string `json:"hospital_id"`    // больница (scope id)
	Role       string `json:"role,omitempty"` // doctor, nurse, admin
}

// RegisterResponse представляет ответ на успешную регистрацию
type RegisterResponse struct {
	UserID  string `json:"user_id"` // UUID пользователя
	Message string `json:"message"` // сообщение об успешной регистрации
}

// LoginRequest представляет запрос на аутентификацию
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse представляет ответ с токеном доступа
type TokenResponse struct {
	AccessToken string `json:"access_token"` // JWT access token
	UserID      string `json:"user_id"`
	HospitalID  string `json:"hospital_id"`
	Role        string `json:"role"`
	ExpiresIn   int64  `json:"expires_in"` // время жизни access token в секундах
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}

// HealthResponse - ответ /api/v1/health
type HealthResponse struct {
	Status string `json:"status"`
	Time   int64  `json:"time"` // время сервера, мс
}

// Коды ошибок (поле ErrorResponse.Error)
const (
	CodeBadRequest    = "bad_request"
	CodeValidation    = "validation_failed"
	CodeUnauthorized  = "unauthorized"
	CodeForbidden     = "forbidden"
	CodeNotFound      = "not_found"
	CodeAlreadyExists = "already_exists"
	CodeStale         = "stale"
	CodeInternal      = "internal_error"
	CodeRateLimited   = "rate_limited"
)
