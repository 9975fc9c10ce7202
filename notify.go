package main

type Notifier interface {
	NotifyPassResults(SyncOptions, *PassReport) error
}
