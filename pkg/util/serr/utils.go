package serr

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Store related wrappers.
func WrapErrStoreCorrupt(path string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrStoreCorrupt, err.Error(), value("path", path))
}

func WrapErrStorePersist(op string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrStorePersist, err.Error(), value("op", op))
}

func WrapErrStoreIoFailed(path string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrStoreIoFailed, err.Error(), value("path", path))
}

func WrapErrRecordNotFound(session string, msg ...string) error {
	err := wrapFields(ErrRecordNotFound, value("session", session))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Session related wrappers.
func WrapErrSessionNotFound(session string, msg ...string) error {
	err := wrapFields(ErrSessionNotFound, value("session", session))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSessionDuplicate(session string, msg ...string) error {
	err := wrapFields(ErrSessionDuplicate, value("session", session))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrClientConnect(session string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrClientConnect, err.Error(), value("session", session))
}

func WrapErrClientLogout(session string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrClientLogout, err.Error(), value("session", session))
}

// Send related wrappers.
func WrapErrSendFailed(session, number string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrSendFailed, err.Error(),
		value("session", session),
		value("number", number),
	)
}

// Request related wrappers.
func WrapErrInvalidRequest(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrInvalidRequest, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterMissing(param string, msg ...string) error {
	err := wrapFields(ErrParameterMissing, value("missing_param", param))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Chat related wrappers.
func WrapErrGroupNotFound(group string, msg ...string) error {
	err := wrapFields(ErrGroupNotFound, value("group", group))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Observer related wrappers.
func WrapErrObserverClosed(observer string, msg ...string) error {
	err := wrapFields(ErrObserverClosed, value("observer", observer))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err gateError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err gateError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}
