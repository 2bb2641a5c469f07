// Package tgui provides small Telegram text helpers:
//   - HTML escaping and tag wrappers for ParseMode="HTML"
//   - A line-oriented message builder with auto escaping
//   - Splitting long texts into Telegram-sized chunks
package tgui
