package domain

import "errors"

var (
	// ErrValidationFailed: не заполнены обязательные поля; сетевой запрос не выполняется
	ErrValidationFailed = errors.New("validation failed")

	// ErrPermissionDenied: доступ к геолокации не выдан
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNetwork: ошибка транспорта или таймаут
	ErrNetwork = errors.New("network error")

	// ErrNoProviderAvailable: backend не нашёл провайдера для запроса
	ErrNoProviderAvailable = errors.New("no provider available")

	// ErrNoRouteFound: сервис маршрутов не построил маршрут
	ErrNoRouteFound = errors.New("no route found")

	// ErrInvalidTransition: переход статуса отклонён (локально или backend'ом)
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStaleRead: снимок старше последнего применённого; не поднимается наружу
	ErrStaleRead = errors.New("stale trip snapshot")

	ErrUnauthorized = errors.New("unauthorized")

	ErrTripNotFound = errors.New("trip not found")

	// ErrPollTimeout: исчерпан лимит времени ожидания
	ErrPollTimeout = errors.New("poll timeout")

	// ErrTripClosed: поездка пришла в терминальный статус, которого не ждали
	ErrTripClosed = errors.New("trip closed")

	// ErrFeedbackSubmitted: отзыв по поездке уже отправлен
	ErrFeedbackSubmitted = errors.New("feedback already submitted")
)
