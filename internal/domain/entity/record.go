package entity

// Record — одна запись тюба: json с метаданными и ссылкой на кадр.
type Record struct {
	Index int    // число из имени файла record_<N>.json
	Path  string // путь к json-файлу записи
}
