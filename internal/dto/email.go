package dto

type SendCodeRequest struct {
	Email       string `json:"email"`
	Purpose     string `json:"purpose,omitempty"`
	Password    string `json:"password,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type SendCodeResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ExpiresIn   int64  `json:"expiresIn"`
	ResendAfter int64  `json:"resendAfter"`
}

type VerifyEmailRequest struct {
	Email            string `json:"email"`
	VerificationCode string `json:"verificationCode"`
}

type VerifyCodeResponse struct {
	Success           bool   `json:"success"`
	Error             string `json:"error,omitempty"`
	Message           string `json:"message"`
	RemainingAttempts *int   `json:"remainingAttempts,omitempty"`
	RetryAfter        *int64 `json:"retryAfter,omitempty"`
}

type EmailStatusResponse struct {
	Email                  string `json:"email"`
	HasPendingVerification bool   `json:"hasPendingVerification"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Email            string `json:"email"`
	VerificationCode string `json:"verificationCode"`
	NewPassword      string `json:"newPassword"`
}
