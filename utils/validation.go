/*
 * Copyright 2025 Olake By Datazip
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// use a single instance, it caches struct info
var (
	uni      *ut.UniversalTranslator
	validate *validator.Validate
	trans    ut.Translator
)

func translateError(err error) (errs []string) {
	var validatorErrs validator.ValidationErrors
	if !errors.As(err, &validatorErrs) {
		return []string{err.Error()}
	}
	for _, e := range validatorErrs {
		errs = append(errs, e.Translate(trans))
	}

	return errs
}

// Validate checks the struct tags of structure. Failures are configuration errors.
func Validate[T any](structure T) error {
	if err := validate.Struct(structure); err != nil {
		return fmt.Errorf("%w: %s", constants.ErrConfiguration, strings.Join(translateError(err), "; "))
	}

	return nil
}

func init() {
	en := en.New()
	uni = ut.New(en, en)
	trans, _ = uni.GetTranslator("en")

	validate = validator.New(validator.WithRequiredStructEnabled())
	// report fields by their config key
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		}

		if name == "" || name == "-" || name == ",squash" {
			return fld.Name
		}

		return name
	})

	err := validate.RegisterValidation("positive_duration", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(time.Duration)
		return ok && d > 0
	})
	if err != nil {
		panic(err)
	}

	err = validate.RegisterTranslation("positive_duration", trans, func(ut ut.Translator) error {
		return ut.Add("positive_duration", "{0} must be a positive duration", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("positive_duration", fe.Field())
		return t
	})
	if err != nil {
		panic(err)
	}

	err = en_translations.RegisterDefaultTranslations(validate, trans)
	if err != nil {
		panic(err)
	}
}
