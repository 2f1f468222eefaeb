package models

// FlowStatus — исход сценариев по одноразовым ссылкам.
// Это штатные результаты, а не ошибки: клиент получает их как 200 с сообщением.
type FlowStatus string

const (
	FlowAccountActivated     FlowStatus = "account_activated"
	FlowActivationLinkResent FlowStatus = "activation_link_resent"
	FlowPasswordReset        FlowStatus = "password_reset"
	FlowResetLinkExpired     FlowStatus = "reset_link_expired"
	FlowPasswordMismatch     FlowStatus = "password_mismatch"
)

var flowMessages = map[FlowStatus]string{
	FlowAccountActivated:     "Successfully verified email address. Your account is now activated.",
	FlowActivationLinkResent: "Verification link as expired. A new link has been sent to your email address.",
	FlowPasswordReset:        "Your password has been successfully reset. Your can now login using your new password.",
	FlowResetLinkExpired:     "Verification link as expired. If you did not request a password reset, please ignore this warning. Otherwise, please request a new password reset link.",
	FlowPasswordMismatch:     "New passwords do not match. Please try again.",
}

// Message возвращает текст для клиента.
func (s FlowStatus) Message() string {
	return flowMessages[s]
}

// FlowResult — результат активации аккаунта или сброса пароля.
type FlowResult struct {
	Status FlowStatus
}

// Message возвращает текст для клиента.
func (r FlowResult) Message() string {
	return r.Status.Message()
}
