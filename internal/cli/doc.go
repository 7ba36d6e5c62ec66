// Package cli реализует инструмент командной строки Metronome.
//
// # Обзор
//
// CLI — клиентская утилита для административного API scheduler'а.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// Только чтение: состояние экземпляра, список job, детали job.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Инкапсулирует запросы, парсинг ответов
// (DataResponse, ListResponse, ErrorResponse) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8081")
//	jobs, err := client.ListJobs(ctx, nil)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, ошибки — в stderr.
// Это позволяет использовать pipe: metronome jobs list --json | jq .
//
// ## Commands
//
//   - status: состояние экземпляра и текущий лидер
//   - health: ping бэкендов экземпляра
//   - jobs: list, show
//
// Каждая группа создаётся через фабричную функцию (NewJobsCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
