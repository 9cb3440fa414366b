package entity

// RenderResult хранит итог одного запуска рендера.
type RenderResult struct {
	RunID       string // идентификатор запуска
	Output      string // путь к видеофайлу
	Total       int    // число найденных записей
	Skipped     int    // пропущено по смещению start
	Rendered    int    // число записанных кадров
	Interrupted bool   // остановлено пользователем
	Err         error  // ошибка, прервавшая цикл
}

// Complete сообщает, что все записи попали в видео.
func (r *RenderResult) Complete() bool {
	return !r.Interrupted && r.Err == nil && r.Skipped+r.Rendered == r.Total
}
