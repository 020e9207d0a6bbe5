// Package cli реализует команды Conveyor CLI.
//
// CLI работает с operational API worker'а: статус регистраций,
// записи компенсаций, ручная компенсация и cross-workflow операции.
package cli
