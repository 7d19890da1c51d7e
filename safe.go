package scouter

import "github.com/sirupsen/logrus"

func safeGo(log logrus.FieldLogger, fn func()) {
	go func() {
		defer func() {
			if err := recover(); err != nil {
				log.WithField("panic", err).Error("scouter: recovered from panic")
			}
		}()
		fn()
	}()
}
