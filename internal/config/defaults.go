package config

const (
	defaultDataDir               = "~/.local/share/sqan"
	defaultAPIBind               = "127.0.0.1:7490"
	defaultStoreDriver           = "sqlite"
	defaultMongoDatabase         = "sqan"
	defaultStoreTimeoutSeconds   = 30
	defaultIncomingTopic         = "dicom-incoming"
	defaultIncomingSubscription  = "dicom-incoming-sqan"
	defaultFailedTopic           = "dicom-failed"
	defaultCleanedTopic          = "dicom-cleaned"
	defaultAckDeadlineSeconds    = 60
	defaultPublishTimeoutSeconds = 30
	defaultSubjectField          = "PatientName"
	defaultSubjectSegment        = 1
	defaultTemplateField         = "PatientName"
	defaultTemplatePattern       = `(?i)template`
	defaultQCBatchSize           = 100
	defaultQCPollInterval        = 3
	defaultQCErrorRetryInterval  = 10
	defaultQCConcurrency         = 4
	defaultQCLockKey             = "sqan:qc:cycle"
	defaultQCLockTTLSeconds      = 120
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultNotifyRequestTimeout  = 10
)

var defaultStripFields = []string{
	"PatientBirthDate",
	"PatientBirthTime",
	"PatientAddress",
	"PatientTelephoneNumbers",
	"OtherPatientIDs",
	"PatientMotherBirthName",
	"ReferringPhysicianName",
	"PerformingPhysicianName",
	"OperatorsName",
	"RequestingPhysician",
	"AccessionNumber",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	strip := make([]string, len(defaultStripFields))
	copy(strip, defaultStripFields)
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			APIBind: defaultAPIBind,
		},
		Store: Store{
			Driver:         defaultStoreDriver,
			MongoDatabase:  defaultMongoDatabase,
			TimeoutSeconds: defaultStoreTimeoutSeconds,
		},
		Broker: Broker{
			IncomingTopic:         defaultIncomingTopic,
			IncomingSubscription:  defaultIncomingSubscription,
			FailedTopic:           defaultFailedTopic,
			CleanedTopic:          defaultCleanedTopic,
			AckDeadlineSeconds:    defaultAckDeadlineSeconds,
			PublishTimeoutSeconds: defaultPublishTimeoutSeconds,
		},
		Header: Header{
			SubjectField:    defaultSubjectField,
			SubjectSegment:  defaultSubjectSegment,
			TemplateField:   defaultTemplateField,
			TemplatePattern: defaultTemplatePattern,
			StripFields:     strip,
		},
		QC: QC{
			BatchSize:          defaultQCBatchSize,
			PollInterval:       defaultQCPollInterval,
			ErrorRetryInterval: defaultQCErrorRetryInterval,
			Concurrency:        defaultQCConcurrency,
			SeriesRollup:       true,
			LockKey:            defaultQCLockKey,
			LockTTLSeconds:     defaultQCLockTTLSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Quarantine:     true,
			Halt:           true,
			QCErrors:       false,
		},
	}
}
