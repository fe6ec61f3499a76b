/*
Package rlog provides structured logging for Strata using zerolog.

It wraps zerolog with a package-level global logger initialized once via
Init, plus child-logger helpers (WithComponent, WithIndexName, WithItemType,
WithSessionID) that stamp a single context field onto every subsequent log
line from that logger. All logs carry a timestamp; output is JSON when
Config.JSONOutput is set and a human-readable console format otherwise.
*/
package rlog
